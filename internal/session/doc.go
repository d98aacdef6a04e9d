// Package session coordinates one editing session for a project.
//
// A Coordinator is created per project. On construction it subscribes to the
// event bus and starts the bootstrap pipeline in the background; it then owns
// four observable values that a presentation layer renders:
//
//   - ProjectState: bootstrap progress, switched to ready exactly once
//   - EditorListState: open editors in open order, at most one per path
//   - the active editor, always one of the open editors or nil
//   - the file tree of the current root
//
// # Opening files
//
// OpenFile is open-or-focus: a path that is already open becomes active and
// nothing is reloaded. A new path is loaded off the caller's lock, then
// inserted and published under the coordinator mutex, with the editor list
// updated before the active editor so a reader never sees an active editor
// that is missing from the list. Concurrent opens of one path share a single
// load; a caller that gives up does not abort it for the others. Restored
// is closed once the remembered and default files are open.
//
//	c, err := session.New(ctx, session.Options{
//		App:         analysis.NewAppEnvironment(afero.NewOsFs()),
//		Bus:         event.Default(),
//		Prefs:       prefs.NewFileStore(store),
//		Config:      cfg,
//		ProjectPath: "/work/app",
//	})
//	defer c.Close()
//
//	ch, cancel := c.ProjectState().Watch()
//	defer cancel()
//
// # Events
//
// The coordinator reacts to file.open (opens the file) and to root.refresh
// for its own project root or a directory below it (rebuilds the tree),
// and publishes editor.opened, editor.activated and project.ready.
//
// # Errors
//
// Bootstrap failures never reach the caller of New; they move Status to
// bootstrap.Failed and leave ProjectState uninitialised. OpenFile returns
// (nil, nil) for a file that vanished, an error wrapping ErrIO when reading
// fails and ErrClosed after Close. SelectTab returns an *InvariantError for
// an index outside the list.
package session
