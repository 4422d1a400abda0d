package main

import (
	"github.com/kinship-crm/kinship/internal/server"
	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnv("LOG_FORMAT") == "json",
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	server.Init()
}
