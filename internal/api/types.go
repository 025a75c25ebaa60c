package api

import (
	"time"

	"github.com/tidwall/gjson"
)

// QueryResponse is the decoded reply of POST /api/query, for both uploads
// and text queries. Optional integer fields come with a Has flag because
// zero is not a meaningful "absent" marker for the client logic.
type QueryResponse struct {
	Success   bool
	SessionID string
	Message   string
	Messages  []string
	// Error is the alternative failure text some handlers send instead of Message.
	Error string

	TotalPages  int
	TotalBlocks int

	IsBlockSummary bool
	Complete       bool

	Block              int
	HasBlock           bool
	ProcessingBlock    int
	HasProcessingBlock bool
}

// Texts returns the bot messages to render: the messages array when the
// server sent one, otherwise the single message.
func (r *QueryResponse) Texts() []string {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	if r.Message != "" {
		return []string{r.Message}
	}
	return nil
}

// FailureText is the server-provided reason for a success:false reply.
func (r *QueryResponse) FailureText() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// SessionInfo describes a loaded document as reported by GET /api/sessions/{id}.
type SessionInfo struct {
	SessionID    string
	DocumentName string
	TotalPages   int
	TotalBlocks  int
	CurrentBlock int
	CreatedAt    time.Time
}

// Health is the reply of GET /api/health.
type Health struct {
	Status    string
	Timestamp string
}

func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

// intField reads a JSON number or numeric string.
func intField(doc gjson.Result, path string) (int, bool) {
	r := doc.Get(path)
	if !present(r) {
		return 0, false
	}
	switch r.Type {
	case gjson.Number:
		return int(r.Int()), true
	case gjson.String:
		if !gjson.Valid(r.Str) {
			return 0, false
		}
		n := gjson.Parse(r.Str)
		if n.Type != gjson.Number {
			return 0, false
		}
		return int(n.Int()), true
	default:
		return 0, false
	}
}

func decodeQuery(doc gjson.Result) *QueryResponse {
	resp := &QueryResponse{
		Success:        doc.Get("success").Bool(),
		SessionID:      doc.Get("sessionId").String(),
		Message:        doc.Get("message").String(),
		Error:          doc.Get("error").String(),
		IsBlockSummary: doc.Get("isBlockSummary").Bool(),
		Complete:       doc.Get("complete").Bool(),
	}
	if msgs := doc.Get("messages"); msgs.IsArray() {
		for _, m := range msgs.Array() {
			resp.Messages = append(resp.Messages, m.String())
		}
	}
	resp.TotalPages, _ = intField(doc, "totalPages")
	resp.TotalBlocks, _ = intField(doc, "totalBlocks")
	resp.Block, resp.HasBlock = intField(doc, "block")
	resp.ProcessingBlock, resp.HasProcessingBlock = intField(doc, "processingBlock")
	return resp
}

func decodeSessionInfo(id string, doc gjson.Result) *SessionInfo {
	si := doc.Get("sessionInfo")
	info := &SessionInfo{
		SessionID:    id,
		DocumentName: si.Get("documentName").String(),
	}
	info.TotalPages, _ = intField(si, "totalPages")
	info.TotalBlocks, _ = intField(si, "totalBlocks")
	info.CurrentBlock, _ = intField(si, "currentBlock")
	if ts := si.Get("createdAt").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			info.CreatedAt = t
		}
	}
	return info
}
