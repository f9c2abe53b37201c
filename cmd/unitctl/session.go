package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/glimte/unitbus"
	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/config"
	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/messaging"
)

const unitName = "unitctl"

var errMemoryTransport = errors.New("the memory transport only connects units of one process; configure network.client.transport")

// session is a connected connector unit
type session struct {
	comp   *unitbus.Component
	target contracts.UnitID
	flags  *globalFlags
}

func openSession(ctx context.Context, flags *globalFlags) (*session, error) {
	var logOutput io.Writer = io.Discard
	if flags.verbose {
		logOutput = os.Stderr
	}

	comp, err := unitbus.New(api.TypeConnector, unitName,
		unitbus.WithConfigFile(flags.configPath),
		unitbus.WithLogOutput(logOutput),
	)
	if err != nil {
		return nil, err
	}
	if comp.Config().Get().String(config.NetworkClientTransport) == config.TransportMemory {
		comp.Close()
		return nil, errMemoryTransport
	}

	if err := comp.Client().ConnectToServer(ctx); err != nil {
		comp.Close()
		return nil, err
	}

	return &session{
		comp:   comp,
		target: api.GateID().WithInstance(flags.gateInstance),
		flags:  flags,
	}, nil
}

func (s *session) Close() error {
	return s.comp.Close()
}

// request sends cmd to the gate and waits for its reply. Unsuccessful replies are errors.
func request[R contracts.CommandReply](ctx context.Context, s *session, cmd contracts.Command) (R, error) {
	var zero R

	pending, err := messaging.BuildCommand(s.comp.Builder(), cmd, nil).
		Timeout(s.flags.timeout).
		Emit(ctx, contracts.DirectChannel(s.target))
	if err != nil {
		return zero, err
	}

	reply, err := messaging.AwaitReply[R](ctx, pending)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", cmd.GetName(), err)
	}
	if !reply.IsSuccess() {
		return reply, fmt.Errorf("%s was rejected: %s", cmd.GetName(), reply.GetMessage())
	}
	return reply, nil
}

func ping(ctx context.Context, s *session) (*api.PingReply, error) {
	return request[*api.PingReply](ctx, s, &api.PingCommand{})
}
