package ai

const ParseContactsPrompt = `
# Task Context
You extract people from free text for a personal address book.

# Background Data
Today is %s.

Text:
"""
%s
"""

# Detailed Task Description & Rules
- Return one entry per distinct person mentioned. Never invent people.
- first_name is required. Leave a field empty when the text does not state it.
- Birthdays use the format YYYY-MM-DD. Skip birthdays whose year is unknown.
- Emails, phones and addresses are lists of {label, value}. Use labels such as "home", "work" or "mobile" when the text says so, otherwise "other".
- tags are short lowercase keywords describing how the person is known (e.g. "school", "climbing").
- company and title describe the current job, if mentioned.

# Output Formatting
Return a JSON object {"persons": [...]}.
`

const ParseUpdatesPrompt = `
# Task Context
You turn a note about people the user already knows into concrete updates of their profiles.

# Background Data
Today is %s.

Known persons (id: name):
%s

Note:
"""
%s
"""

# Detailed Task Description & Rules
- Only reference persons from the list above, by id. Ignore everyone else.
- field is one of: nickname, birthday, notes, email, phone, address, employment, anecdote.
- For birthday use YYYY-MM-DD. For employment put the company in value and the job title in label.
- For email, phone and address put the kind (home, work, mobile) in label.
- Use anecdote for stories, quotes or events; value holds the text and label a short title.
- Use notes only for lasting facts that fit no other field.
- Give a one-sentence reason for each update.

# Output Formatting
Return a JSON object {"updates": [...]}.
`

const SuggestRelationshipsPrompt = `
# Task Context
You suggest relationships between people in a personal address book.

# Background Data
Relationship types (id: name / inverse name):
%s

Persons:
%s

Existing relationships:
%s

Additional context from the user:
%s

# Detailed Task Description & Rules
- Suggest only relationships that are supported by notes, shared employers, surnames or the additional context.
- Never suggest a relationship that already exists, in either direction.
- person_a_id and person_b_id must differ and come from the list. relationship_type_id must come from the type list and reads "A is <name> of B".
- confidence is between 0 and 1. Leave out anything below 0.4.
- Give a one-sentence reason for each suggestion.

# Output Formatting
Return a JSON object {"suggestions": [...]}.
`

const SuggestTagsPrompt = `
# Task Context
You suggest tags for one person in a personal address book.

# Background Data
Existing tags:
%s

Person:
%s

# Detailed Task Description & Rules
- Prefer existing tags. Propose a new tag only when none of the existing ones fit.
- Tags are short, lowercase and general (e.g. "family", "work", "book club").
- Do not suggest tags the person already has.
- Suggest at most five tags, each with a one-sentence reason.

# Output Formatting
Return a JSON object {"suggestions": [{"name": ..., "reason": ...}]}.
`

const ChatSystemPrompt = `
You are the assistant of a personal relationship manager. You answer questions about the people the user knows, their relationships, jobs and shared memories.

Rules:
- Answer only from the data below and from tool results. If the data does not contain the answer, say so.
- Use the search_persons tool to find people not listed below and get_person for full details.
- Mention people by full name followed by their id in double brackets, e.g. Ann Smith [[12]]. Keep answers short.

Today is %s.

Known persons:
%s
`

const SmartSearchPrompt = `
# Task Context
You help find people in a personal address book from a natural-language query.

# Background Data
Query: "%s"

Candidates:
%s

# Detailed Task Description & Rules
- Select the candidates that match the query, best match first.
- Only return ids from the candidate list.
- explanation is one sentence telling the user why these people matched.

# Output Formatting
Return a JSON object {"person_ids": [...], "explanation": "..."}.
`

const PhotoDescriptionPrompt = `
Describe this photo for a personal photo archive in two or three sentences.
Mention the setting, the number of people, visible activities and the mood.
Do not guess names or identities. Do not describe image quality.
`
