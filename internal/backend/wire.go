package backend

import (
	"fmt"

	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/status"
)

// Auth is the credential block of a request.
type Auth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Request is the JSON body accepted by every backend route.
type Request struct {
	Path        string   `json:"path,omitempty"`
	Files       []string `json:"files,omitempty"`
	File        string   `json:"file,omitempty"`
	ByExtension bool     `json:"by_extension,omitempty"`
	URL         string   `json:"url,omitempty"`
	Name        string   `json:"name,omitempty"`
	Target      string   `json:"target,omitempty"`
	Ref         string   `json:"ref,omitempty"`
	Auth        *Auth    `json:"auth,omitempty"`
}

// Credentials converts the auth block, or returns nil when absent.
func (r Request) Credentials() *models.Credentials {
	if r.Auth == nil {
		return nil
	}
	return &models.Credentials{Username: r.Auth.Username, Password: r.Auth.Password}
}

func authFrom(creds *models.Credentials) *Auth {
	if creds == nil {
		return nil
	}
	return &Auth{Username: creds.Username, Password: creds.Password}
}

// FileRecord is the wire shape of one status entry. X and Y hold a single
// porcelain character each.
type FileRecord struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	X    string `json:"x"`
	Y    string `json:"y"`
	Text bool   `json:"text,omitempty"`
}

// StatusReply is returned by the status route.
type StatusReply struct {
	Branch   string       `json:"branch"`
	Upstream string       `json:"upstream,omitempty"`
	Ahead    int          `json:"ahead,omitempty"`
	Behind   int          `json:"behind,omitempty"`
	Detached bool         `json:"detached,omitempty"`
	Files    []FileRecord `json:"files"`
}

// PathReply is returned by top_level.
type PathReply struct {
	Path string `json:"path"`
}

// ShowReply carries file content at a revision. Content is base64 encoded
// on the wire so non UTF-8 bytes survive.
type ShowReply struct {
	Content []byte `json:"content"`
}

// ErrorReply is the body of every failed request.
type ErrorReply struct {
	ErrorKind models.ErrorKind `json:"error_kind"`
	Message   string           `json:"message"`
}

// EventFileChanged is the only event type sent on /events.
const EventFileChanged = "file_changed"

// Event is a change notification pushed over the websocket stream.
type Event struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// NewStatusReply converts a parsed report to its wire form.
func NewStatusReply(report status.Report) StatusReply {
	reply := StatusReply{
		Branch:   report.Branch,
		Upstream: report.Upstream,
		Ahead:    report.Ahead,
		Behind:   report.Behind,
		Detached: report.Detached,
		Files:    make([]FileRecord, 0, len(report.Files)),
	}
	for _, f := range report.Files {
		reply.Files = append(reply.Files, FileRecord{
			To:   f.To,
			From: f.From,
			X:    string(f.X),
			Y:    string(f.Y),
			Text: f.Text,
		})
	}
	return reply
}

// Report converts the wire form back into a classified report.
func (r StatusReply) Report() (status.Report, error) {
	report := status.Report{
		Branch:   r.Branch,
		Upstream: r.Upstream,
		Ahead:    r.Ahead,
		Behind:   r.Behind,
		Detached: r.Detached,
		Files:    make([]models.StatusFile, 0, len(r.Files)),
	}
	for _, rec := range r.Files {
		x, err := wireCode(rec.X)
		if err != nil {
			return report, fmt.Errorf("file %q: %w", rec.To, err)
		}
		y, err := wireCode(rec.Y)
		if err != nil {
			return report, fmt.Errorf("file %q: %w", rec.To, err)
		}
		file := status.NewFile(rec.To, x, y)
		file.From = rec.From
		file.Text = rec.Text
		report.Files = append(report.Files, file)
	}
	return report, nil
}

func wireCode(code string) (byte, error) {
	switch len(code) {
	case 0:
		return ' ', nil
	case 1:
		return code[0], nil
	}
	return 0, fmt.Errorf("invalid status code %q", code)
}
