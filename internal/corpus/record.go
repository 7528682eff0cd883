// Package corpus builds, writes and validates the JSONL fine-tuning corpus.
package corpus

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finetune-cli/internal/sheet"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn of a training record.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record is one supervised training example.
type Record struct {
	Messages []Message `json:"messages"`
}

// Message returns the first message with the given role.
func (r Record) Message(role string) (Message, bool) {
	for _, m := range r.Messages {
		if m.Role == role {
			return m, true
		}
	}
	return Message{}, false
}

// Keys are the top-level names of the two tables in the assistant answer.
type Keys struct {
	Info         string
	Transactions string
}

// Build assembles a record whose assistant content is the JSON object
// {Info: [...], Transactions: [...]} with keys in that order.
func Build(systemPrompt, userText string, tables *sheet.Tables, keys Keys) (Record, error) {
	if tables == nil {
		return Record{}, eris.New("corpus: build: nil tables")
	}

	answer, err := AnswerJSON(tables, keys)
	if err != nil {
		return Record{}, err
	}

	return Record{Messages: []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userText},
		{Role: RoleAssistant, Content: answer},
	}}, nil
}

// AnswerJSON serializes the tables as the assistant's expected answer.
func AnswerJSON(tables *sheet.Tables, keys Keys) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	info := tables.Info
	if info == nil {
		info = []sheet.Row{}
	}
	tx := tables.Transactions
	if tx == nil {
		tx = []sheet.Row{}
	}

	buf.WriteByte('{')
	for i, part := range []struct {
		key  string
		rows []sheet.Row
	}{{keys.Info, info}, {keys.Transactions, tx}} {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(part.key); err != nil {
			return "", eris.Wrap(err, "corpus: encode key")
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if err := enc.Encode(part.rows); err != nil {
			return "", eris.Wrapf(err, "corpus: encode %s rows", part.key)
		}
		trimNewline(&buf)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// encodeLine renders a record as one JSONL line including the newline.
func encodeLine(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, eris.Wrap(err, "corpus: encode record")
	}
	return buf.Bytes(), nil
}

func trimNewline(buf *bytes.Buffer) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}
