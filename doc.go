/*
Package sienna models a fixed-topology compute pipeline that moves 32-bit
words through four heterogeneous processing stages:

	matmul     - matrix-multiply engine;
	activation - nonlinear activation engine;
	maxpool    - spatial pooling engine;
	dropout    - stochastic/scaling engine.

Stages are decoupled by bounded queues and, for the pooling stage, by an
addressable staging store that converts the streamed arrival order into a
2-D-indexable array for windowed consumption.

Concept

The heart of the package is the pipe.Pipe controller: a synchronous
sequencer that advances one discrete step at a time through a fixed phase
graph. Within a phase the controller either waits for a stage to finish or
moves exactly one element between a stage port and a queue or store. A phase
completes only when its entire element set has been transferred, so no stage
ever observes a partial output of its upstream neighbour.

Components

Each compute engine is wrapped by the uniform stage contract declared in
this package: a start pulse, busy/done level signals and a Tick to advance
one step. Data moves through pull ports (Source), push ports (Sink) or an
addressed port bound to a store (Windowed). The controller is the single
authority over every queue and store mutation; engines only touch the ports
handed to them.

Execution

A pipeline is built from a validated configuration and four stages:

	p, err := pipe.New(cfg, a, b, c, d)

and executed either synchronously step by step, or to completion:

	result, err := p.Run(ctx)

The run package offers an asynchronous host harness on top of the same
controller for callers that want a goroutine-driven pass with an error
channel.
*/
package sienna
