package academic

import (
	"context"
	"fmt"
)

// CommandHandler is the interface for handling a specific command type.
type CommandHandler interface {
	// CommandType returns the type of command this handler processes.
	CommandType() string

	// Handle processes the command and returns a result.
	Handle(ctx context.Context, cmd Command) (CommandResult, error)
}

// CommandHandlerFunc is a function type that implements CommandHandler.
type CommandHandlerFunc struct {
	cmdType string
	fn      func(ctx context.Context, cmd Command) (CommandResult, error)
}

// NewCommandHandlerFunc creates a new CommandHandlerFunc.
func NewCommandHandlerFunc(cmdType string, fn func(ctx context.Context, cmd Command) (CommandResult, error)) *CommandHandlerFunc {
	return &CommandHandlerFunc{
		cmdType: cmdType,
		fn:      fn,
	}
}

// CommandType returns the command type this handler processes.
func (h *CommandHandlerFunc) CommandType() string {
	return h.cmdType
}

// Handle processes the command.
func (h *CommandHandlerFunc) Handle(ctx context.Context, cmd Command) (CommandResult, error) {
	return h.fn(ctx, cmd)
}

// RecordHandler runs a command against a student's record: it loads the
// record, executes the command on it and saves the result.
//
// The record is loaded fresh for every command. A version conflict is
// returned to the caller, who decides whether to retry.
type RecordHandler[C RecordCommand] struct {
	repo     *Repository
	executor func(ctx context.Context, record *StudentRecord, cmd C) error
}

// NewRecordHandler creates a handler that executes commands of type C.
func NewRecordHandler[C RecordCommand](repo *Repository, executor func(ctx context.Context, record *StudentRecord, cmd C) error) *RecordHandler[C] {
	return &RecordHandler[C]{
		repo:     repo,
		executor: executor,
	}
}

// CommandType returns the command type this handler processes.
func (h *RecordHandler[C]) CommandType() string {
	var zero C
	return zero.CommandType()
}

// Handle loads the record, executes the command, and saves the record.
func (h *RecordHandler[C]) Handle(ctx context.Context, cmd Command) (CommandResult, error) {
	typedCmd, ok := cmd.(C)
	if !ok {
		err := fmt.Errorf("academic: expected command type %T, got %T", *new(C), cmd)
		return NewErrorResult(err), err
	}

	record, err := h.repo.Load(ctx, typedCmd.AggregateID())
	if err != nil {
		return NewErrorResult(err), err
	}

	record.SetMetadata(metadataFromContext(ctx))
	if err := h.executor(ctx, record, typedCmd); err != nil {
		return NewErrorResult(err), err
	}

	save, err := h.repo.Save(ctx, record)
	if err != nil {
		return NewErrorResult(err), err
	}

	return NewSuccessResult(record.AggregateID(), save), nil
}

// metadataFromContext collects the correlation data middleware put on ctx.
func metadataFromContext(ctx context.Context) Metadata {
	return Metadata{
		CorrelationID: CorrelationIDFromContext(ctx),
		CausationID:   CausationIDFromContext(ctx),
	}
}
