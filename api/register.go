package api

import (
	"errors"

	"github.com/glimte/unitbus/serialization"
)

// RegisterTypes registers all api messages
func RegisterTypes(registry serialization.TypeRegistry) error {
	return errors.Join(
		serialization.RegisterMessage[ListProjectsCommand](registry, ListProjectsCommandName),
		serialization.RegisterMessage[ListProjectsReply](registry, ListProjectsReplyName),
		serialization.RegisterMessage[CreateProjectCommand](registry, CreateProjectCommandName),
		serialization.RegisterMessage[CreateProjectReply](registry, CreateProjectReplyName),
		serialization.RegisterMessage[UpdateProjectCommand](registry, UpdateProjectCommandName),
		serialization.RegisterMessage[UpdateProjectReply](registry, UpdateProjectReplyName),
		serialization.RegisterMessage[DeleteProjectCommand](registry, DeleteProjectCommandName),
		serialization.RegisterMessage[DeleteProjectReply](registry, DeleteProjectReplyName),
		serialization.RegisterMessage[ProjectsChangedEvent](registry, ProjectsChangedEventName),

		serialization.RegisterMessage[ClientConnectedEvent](registry, ClientConnectedEventName),
		serialization.RegisterMessage[ClientConnectionErrorEvent](registry, ClientConnectionErrorEventName),
		serialization.RegisterMessage[ClientDisconnectedEvent](registry, ClientDisconnectedEventName),
		serialization.RegisterMessage[PingCommand](registry, PingCommandName),
		serialization.RegisterMessage[PingReply](registry, PingReplyName),
	)
}
