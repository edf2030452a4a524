package model

// SourceFile describes a source file discovered in a repository scan.
type SourceFile struct {
	Path          string // Relative to the repository root, slash-separated.
	AbsPath       string
	Package       string
	Size          int64
	FunctionCount int
	HasStructs    bool
	HasInterfaces bool
	HasConsts     bool
	Complexity    float64
	Score         float64 // Assigned by the scoring step, zero after a scan.
}
