package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"promptgate/internal/llm"
)

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// Wire shapes of the unified stream frames.
type (
	contentFrame struct {
		Content string `json:"content"`
	}
	usageFrame struct {
		Usage json.RawMessage `json:"usage"`
	}
	doneFrame struct {
		Done bool `json:"done"`
	}
	errorFrame struct {
		Error   string `json:"error"`
		Details string `json:"details"`
		IsError bool   `json:"isError"`
	}
)

func frameFor(ev llm.Event) any {
	switch e := ev.(type) {
	case llm.ContentEvent:
		return contentFrame{Content: e.Text}
	case llm.UsageEvent:
		return usageFrame{Usage: e.Raw}
	case llm.DoneEvent:
		return doneFrame{Done: true}
	case llm.ErrorEvent:
		return errorFrame{Error: e.Message, Details: e.Details, IsError: true}
	default:
		return nil
	}
}

// encodeFrame renders one event as "data: <json>\n\n".
func encodeFrame(ev llm.Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("data: ")

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(frameFor(ev)); err != nil {
		return nil, err
	}
	// Encode already wrote one newline
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
