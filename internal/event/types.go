package event

// EventType represents the type of event.
type EventType string

const (
	// FileOpen asks the active session to open (or focus) a file.
	FileOpen EventType = "file.open"
	// RootRefresh announces that a project root changed and views should rebuild.
	RootRefresh EventType = "root.refresh"

	ProjectReady    EventType = "project.ready"
	EditorOpened    EventType = "editor.opened"
	EditorActivated EventType = "editor.activated"
	BootstrapStage  EventType = "bootstrap.stage"
	BootstrapFailed EventType = "bootstrap.failed"
)

// OpenFileData is the data for file.open events.
type OpenFileData struct {
	Path string `json:"path"`
}

// RefreshRootData is the data for root.refresh events.
type RefreshRootData struct {
	Root string `json:"root"`
}

// ProjectReadyData is the data for project.ready events.
type ProjectReadyData struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// EditorData is the data for editor.opened and editor.activated events.
type EditorData struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// BootstrapStageData is the data for bootstrap.stage events.
type BootstrapStageData struct {
	Project string `json:"project"`
	Stage   string `json:"stage"`
}

// BootstrapFailedData is the data for bootstrap.failed events.
type BootstrapFailedData struct {
	Project string `json:"project"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}
