// Package messaging provides the command/reply core of a unitbus component.
//
// This package implements:
//   - MessageBus: routes messages locally to services or to the network engine
//   - MessageService: groups handlers and creates a MessageContext per invocation
//   - MessageHandlers: ordered routing table matching "/"-delimited name filters
//   - MessageBuilder and composers: stamp envelopes and emit messages onto a channel
//   - CommandTracker: correlates commands and replies by trace, with deadlines
//
// Example usage:
//
//	bus := messaging.NewMessageBus(compID, messaging.WithBusLogger(logger))
//	svc := messaging.NewMessageService("projects", bus)
//	bus.AddService(svc)
//
//	svc.AddHandler("command/project/*", messaging.Handle(
//		func(ctx *messaging.MessageContext, cmd *api.ListProjectsCommand) error {
//			return messaging.Reply(ctx, cmd, &api.ListProjectsReply{}, true, "")
//		}))
//
//	pending, err := messaging.BuildCommand(svc.Builder(), &api.ListProjectsCommand{}, nil).
//		Timeout(5 * time.Second).
//		Emit(ctx, contracts.LocalChannel())
//	if err != nil {
//		return err
//	}
//	reply, err := messaging.AwaitReply[*api.ListProjectsReply](ctx, pending)
package messaging
