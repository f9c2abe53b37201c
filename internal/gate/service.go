// Package gate implements the unit answering project commands.
package gate

import (
	"errors"
	"log/slog"

	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/interceptors"
	"github.com/glimte/unitbus/internal/reliability"
	"github.com/glimte/unitbus/messaging"
	"github.com/glimte/unitbus/schema"
)

// ServiceName is the name of the message service created by NewService
const ServiceName = "gate"

// Service answers project and ping commands from a ProjectStore.
// Every change is announced to api.ProjectsRoom.
type Service struct {
	svc       *messaging.MessageService
	store     ProjectStore
	version   string
	chain     *interceptors.Chain
	validator *schema.Validator
	origins   []string
	readRetry reliability.RetryPolicy
}

// ServiceOption configures the Service
type ServiceOption func(*Service)

// WithInterceptors wraps every handler of the service with chain.
// The default chain logs each handled command at debug level.
func WithInterceptors(chain *interceptors.Chain) ServiceOption {
	return func(s *Service) {
		s.chain = chain
	}
}

// WithValidator replaces the validator applied to commands before they reach the store.
// Invalid commands are answered with an unsuccessful reply.
func WithValidator(v *schema.Validator) ServiceOption {
	return func(s *Service) {
		s.validator = v
	}
}

// WithAllowedOrigins answers remote commands whose origin has none of the given unit
// types with an unsuccessful reply. Local commands always pass.
func WithAllowedOrigins(types ...string) ServiceOption {
	return func(s *Service) {
		s.origins = types
	}
}

// WithReadRetry handles the read-only commands (list, ping) again while answering them
// fails. Changing commands are never retried.
func WithReadRetry(policy reliability.RetryPolicy) ServiceOption {
	return func(s *Service) {
		s.readRetry = policy
	}
}

// NewService creates the gate service and adds it to the bus
func NewService(bus *messaging.MessageBus, store ProjectStore, version string, options ...ServiceOption) (*Service, error) {
	s := &Service{
		svc:       messaging.NewMessageService(ServiceName, bus),
		store:     store,
		version:   version,
		chain:     interceptors.NewChain(interceptors.NewLoggingInterceptor()),
		validator: NewCommandValidator(),
	}
	for _, option := range options {
		option(s)
	}

	guard := s.guard()
	write := guard.Then
	read := guard.Then
	if s.readRetry != nil {
		retry := interceptors.NewChain(interceptors.NewRetryInterceptor(s.readRetry))
		read = func(handler messaging.HandlerFunc) messaging.HandlerFunc {
			return retry.Then(guard.Then(handler))
		}
	}

	err := errors.Join(
		s.svc.AddHandler(api.ListProjectsCommandName, s.chain.Then(read(messaging.Handle(s.listProjects)))),
		s.svc.AddHandler(api.CreateProjectCommandName, s.chain.Then(write(messaging.Handle(s.createProject)))),
		s.svc.AddHandler(api.UpdateProjectCommandName, s.chain.Then(write(messaging.Handle(s.updateProject)))),
		s.svc.AddHandler(api.DeleteProjectCommandName, s.chain.Then(write(messaging.Handle(s.deleteProject)))),
		s.svc.AddHandler(api.PingCommandName, s.chain.Then(read(messaging.Handle(s.ping)))),
	)
	if err != nil {
		return nil, err
	}

	bus.AddService(s.svc)
	return s, nil
}

// guard filters and validates commands, answering refused ones with Reject
func (s *Service) guard() *interceptors.Chain {
	chain := interceptors.NewChain()
	if len(s.origins) > 0 {
		allowed := interceptors.Any(interceptors.Not(interceptors.FromNetwork()), interceptors.FromUnitTypes(s.origins...))
		chain.Add(interceptors.NewFilteringInterceptor(allowed, interceptors.SkipWithLog).WithRejection(Reject))
	}
	return chain.Add(interceptors.NewValidationInterceptor(s.validator).WithRejection(Reject))
}

// MessageService returns the underlying message service
func (s *Service) MessageService() *messaging.MessageService {
	return s.svc
}

func (s *Service) listProjects(ctx *messaging.MessageContext, cmd *api.ListProjectsCommand) error {
	return messaging.Reply(ctx, cmd, &api.ListProjectsReply{Projects: s.store.List()}, true, "")
}

func (s *Service) createProject(ctx *messaging.MessageContext, cmd *api.CreateProjectCommand) error {
	project, err := s.store.Create(cmd.Title, cmd.Description)
	if err != nil {
		return fail(ctx, cmd, &api.CreateProjectReply{}, err)
	}

	ctx.Logger().Info("project created", "project_id", project.ProjectID)
	if err := messaging.Reply(ctx, cmd, &api.CreateProjectReply{ProjectID: project.ProjectID}, true, ""); err != nil {
		return err
	}
	s.announce(ctx, cmd, project.ProjectID, api.ProjectCreated)
	return nil
}

func (s *Service) updateProject(ctx *messaging.MessageContext, cmd *api.UpdateProjectCommand) error {
	project, err := s.store.Update(cmd)
	if err != nil {
		return fail(ctx, cmd, &api.UpdateProjectReply{ProjectID: cmd.ProjectID}, err)
	}

	ctx.Logger().Info("project updated", "project_id", project.ProjectID, "scope", int(cmd.Scope))
	if err := messaging.Reply(ctx, cmd, &api.UpdateProjectReply{ProjectID: project.ProjectID}, true, ""); err != nil {
		return err
	}
	s.announce(ctx, cmd, project.ProjectID, api.ProjectUpdated)
	return nil
}

func (s *Service) deleteProject(ctx *messaging.MessageContext, cmd *api.DeleteProjectCommand) error {
	project, err := s.store.Delete(cmd.ProjectID)
	if err != nil {
		return fail(ctx, cmd, &api.DeleteProjectReply{ProjectID: cmd.ProjectID}, err)
	}

	ctx.Logger().Info("project deleted", "project_id", project.ProjectID)
	if err := messaging.Reply(ctx, cmd, &api.DeleteProjectReply{ProjectID: project.ProjectID}, true, ""); err != nil {
		return err
	}
	s.announce(ctx, cmd, project.ProjectID, api.ProjectDeleted)
	return nil
}

func (s *Service) ping(ctx *messaging.MessageContext, cmd *api.PingCommand) error {
	return messaging.Reply(ctx, cmd, &api.PingReply{Version: s.version}, true, "")
}

// Reject answers a project or ping command with an unsuccessful reply carrying the
// cause. Other messages get cause back.
func Reject(ctx *messaging.MessageContext, msg contracts.Message, cause error) error {
	var reply contracts.CommandReply
	switch cmd := msg.(type) {
	case *api.ListProjectsCommand:
		reply = &api.ListProjectsReply{}
	case *api.CreateProjectCommand:
		reply = &api.CreateProjectReply{}
	case *api.UpdateProjectCommand:
		reply = &api.UpdateProjectReply{ProjectID: cmd.ProjectID}
	case *api.DeleteProjectCommand:
		reply = &api.DeleteProjectReply{ProjectID: cmd.ProjectID}
	case *api.PingCommand:
		reply = &api.PingReply{}
	default:
		return cause
	}
	return fail(ctx, msg.(contracts.Command), reply, cause)
}

// fail answers a command with an unsuccessful reply carrying the error text
func fail(ctx *messaging.MessageContext, cmd contracts.Command, reply contracts.CommandReply, cause error) error {
	ctx.Logger().Warn("command rejected", "error", cause)
	return messaging.Reply(ctx, cmd, reply, false, cause.Error())
}

func (s *Service) announce(ctx *messaging.MessageContext, cmd contracts.Command, id api.ProjectID, change api.ProjectChange) {
	ev := &api.ProjectsChangedEvent{ProjectID: id, Change: change}
	err := messaging.BuildEvent(ctx.Builder(), ev, cmd).Emit(ctx.Context(), contracts.RoomChannel(api.ProjectsRoom))
	if err != nil {
		// Offline components have nobody to tell
		level := slog.LevelError
		if errors.Is(err, contracts.ErrNoRemote) {
			level = slog.LevelDebug
		}
		ctx.Logger().Log(ctx.Context(), level, "failed to announce project change", "project_id", id, "error", err)
	}
}
