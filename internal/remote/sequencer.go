// Package remote runs push and pull, prompting for credentials and retrying
// while the remote rejects them.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/chmouel/gitpanel/internal/backend"
	log "github.com/chmouel/gitpanel/internal/log"
	"github.com/chmouel/gitpanel/internal/models"
)

// Operation is a remote operation the sequencer can run.
type Operation string

const (
	Push  Operation = "push"
	Pull  Operation = "pull"
	Clone Operation = "clone"
)

// State is the terminal state of a run.
type State string

const (
	Succeeded  State = "succeeded"
	AuthFailed State = "auth_failed"
	Cancelled  State = "cancelled"
	Failed     State = "failed"
)

// RejectedMessage is shown when the previous credentials were refused.
const RejectedMessage = "previous attempt was rejected"

// Executor runs one attempt of op. creds is nil for the first attempt.
type Executor interface {
	Run(ctx context.Context, op Operation, creds *models.Credentials) error
}

// PromptRequest is passed to the credential prompt before each retry.
type PromptRequest struct {
	Operation  Operation
	RetryCount int
	// Rejected is set once an authenticated attempt has failed.
	Rejected bool
	Message  string
}

// CredentialPrompt asks the user for credentials. ok is false when the user
// declines.
type CredentialPrompt interface {
	Prompt(ctx context.Context, req PromptRequest) (creds models.Credentials, ok bool, err error)
}

// Outcome is the result of a run.
type Outcome struct {
	State     State
	Operation Operation
	Attempts  int
	Prompts   int
	Err       error
}

func (o Outcome) String() string {
	switch o.State {
	case Succeeded:
		return fmt.Sprintf("%s succeeded", o.Operation)
	case Cancelled:
		return fmt.Sprintf("%s cancelled", o.Operation)
	case AuthFailed:
		return fmt.Sprintf("%s failed: credentials rejected %d times", o.Operation, o.Prompts)
	}
	if o.Err != nil {
		return fmt.Sprintf("%s failed: %v", o.Operation, o.Err)
	}
	return fmt.Sprintf("%s failed", o.Operation)
}

// Sequencer drives the credential retry loop.
type Sequencer struct {
	executor Executor
	prompt   CredentialPrompt
	// RetryLimit caps rejected authenticated attempts; 0 means no cap.
	RetryLimit int
	logf       func(string, ...any)
}

// NewSequencer builds a sequencer over executor and prompt.
func NewSequencer(executor Executor, prompt CredentialPrompt, retryLimit int, logf func(string, ...any)) *Sequencer {
	if logf == nil {
		logf = log.Printf
	}
	return &Sequencer{executor: executor, prompt: prompt, RetryLimit: retryLimit, logf: logf}
}

// Run executes op until it succeeds, fails for a reason other than
// authentication, or the user declines to enter credentials.
func (s *Sequencer) Run(ctx context.Context, op Operation) Outcome {
	out := Outcome{Operation: op}
	var creds *models.Credentials
	rejected := 0

	for {
		if err := ctx.Err(); err != nil {
			out.State, out.Err = Cancelled, err
			return out
		}

		out.Attempts++
		err := s.executor.Run(ctx, op, creds)
		if err == nil {
			s.logf("%s: succeeded after %d attempt(s)", op, out.Attempts)
			out.State = Succeeded
			return out
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			out.State, out.Err = Cancelled, err
			return out
		}
		if !models.IsKind(err, models.ErrAuthenticationFailure) {
			s.logf("%s: failed: %s", op, models.KindOf(err))
			out.State, out.Err = Failed, err
			return out
		}

		if creds != nil {
			rejected++
		}
		if s.RetryLimit > 0 && rejected >= s.RetryLimit {
			s.logf("%s: giving up after %d rejected attempt(s)", op, rejected)
			out.State, out.Err = AuthFailed, err
			return out
		}

		if s.prompt == nil {
			out.State, out.Err = AuthFailed, err
			return out
		}

		req := PromptRequest{Operation: op, RetryCount: out.Prompts, Rejected: creds != nil}
		if req.Rejected {
			req.Message = RejectedMessage
		}
		out.Prompts++
		entered, ok, perr := s.prompt.Prompt(ctx, req)
		switch {
		case perr != nil && (errors.Is(perr, context.Canceled) || errors.Is(perr, context.DeadlineExceeded)):
			out.State, out.Err = Cancelled, perr
			return out
		case perr != nil:
			out.State, out.Err = Failed, perr
			return out
		case !ok:
			s.logf("%s: credentials declined", op)
			out.State = Cancelled
			return out
		}
		creds = &entered
	}
}

// BackendExecutor runs remote operations through a backend. Push and pull
// act on Repo; clone copies URL into Target.
type BackendExecutor struct {
	Backend backend.Backend
	Repo    string
	URL     string
	Target  string
}

// Run implements Executor.
func (e BackendExecutor) Run(ctx context.Context, op Operation, creds *models.Credentials) error {
	switch op {
	case Push:
		return e.Backend.Push(ctx, e.Repo, creds)
	case Pull:
		return e.Backend.Pull(ctx, e.Repo, creds)
	case Clone:
		return e.Backend.Clone(ctx, e.URL, e.Target, creds)
	}
	return models.NewError(models.ErrInvalidRequest, "unknown remote operation %q", op)
}
