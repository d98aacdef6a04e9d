package analysis

// ElementFinder resolves classes and packages for the analysis engine.
type ElementFinder interface {
	FindClass(qualifiedName string) (*ClassInfo, bool)
	FindClasses(qualifiedName string) []*ClassInfo
	FindPackage(qualifiedName string) (*PackageInfo, bool)
}

// FileManagerFinder is the element finder backed by the project's FileManager.
type FileManagerFinder struct {
	files *FileManager
}

// NewFileManagerFinder returns a finder delegating to files.
func NewFileManagerFinder(files *FileManager) *FileManagerFinder {
	return &FileManagerFinder{files: files}
}

func (f *FileManagerFinder) FindClass(qualifiedName string) (*ClassInfo, bool) {
	return f.files.FindClass(qualifiedName)
}

func (f *FileManagerFinder) FindClasses(qualifiedName string) []*ClassInfo {
	return f.files.FindClasses(qualifiedName)
}

func (f *FileManagerFinder) FindPackage(qualifiedName string) (*PackageInfo, bool) {
	return f.files.FindPackage(qualifiedName)
}

// FindClass asks every installed element finder in order and returns the
// first match.
func FindClass(env *ProjectEnvironment, qualifiedName string) (*ClassInfo, bool) {
	for _, f := range Extensions[ElementFinder](env, ElementFinderEP) {
		if c, ok := f.FindClass(qualifiedName); ok {
			return c, true
		}
	}
	return nil, false
}

// ClassesByShortName collects classes with the given simple name from the
// installed JVM element providers.
func ClassesByShortName(env *ProjectEnvironment, shortName string) []*ClassInfo {
	var out []*ClassInfo
	for _, p := range Extensions[JvmElementProvider](env, JvmElementProviderEP) {
		out = append(out, p.ClassesByName(shortName)...)
	}
	return out
}

// NotifyTreeChanging runs the installed tree change preprocessors for path.
func NotifyTreeChanging(env *ProjectEnvironment, path string) {
	for _, p := range Extensions[TreeChangePreprocessor](env, TreeChangePreprocessorEP) {
		p.TreeChanging(path)
	}
}
