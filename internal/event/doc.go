/*
Package event provides the process-wide publish/subscribe channel used by
workbench sessions.

Sessions subscribe to requests coming from other parts of the process (a file
browser asking to open a file, a watcher announcing that the project tree
changed) and publish their own lifecycle notifications.

# Event Types

Requests:
  - file.open: open or focus a file in the active session
  - root.refresh: a project root changed, rebuild tree views

Notifications:
  - project.ready: bootstrap finished, project state is initialized
  - editor.opened: a new editor session was added
  - editor.activated: the focused editor changed
  - bootstrap.stage: the bootstrap pipeline entered a new stage
  - bootstrap.failed: the bootstrap pipeline stopped with an error

# Basic Usage

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.FileOpen, func(e event.Event) {
		data := e.Data.(event.OpenFileData)
		log.Info().Str("path", data.Path).Msg("open requested")
	})
	defer unsubscribe()

	bus.Publish(event.Event{
		Type: event.FileOpen,
		Data: event.OpenFileData{Path: "/work/app/Main.java"},
	})

Publish calls each subscriber on its own goroutine; PublishSync calls them in
the publisher's goroutine. Subscribers used with PublishSync must return
quickly and must not publish re-entrantly.

# Mirroring

The bus is built on watermill's gochannel. After EnableMirror (or the first
call to Messages) every event is also marshalled to JSON and published on
MirrorTopic, so consumers that only understand raw messages can follow the
stream:

	msgs, err := bus.Messages(ctx)
	for msg := range msgs {
		fmt.Println(msg.Metadata.Get("type"), string(msg.Payload))
		msg.Ack()
	}
*/
package event
