package repofs

import (
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
)

// fileFacts is the structural summary of one Go source file.
type fileFacts struct {
	pkg           string
	functions     int
	hasStructs    bool
	hasInterfaces bool
	hasConsts     bool
}

// complexity weighs size in kilobytes, declared functions and the presence of
// interfaces, structs and constants.
func (f fileFacts) complexity(size int) float64 {
	score := float64(size)/1000 + float64(f.functions)*2
	if f.hasInterfaces {
		score += 3
	}
	if f.hasStructs {
		score += 2
	}
	if f.hasConsts {
		score++
	}
	return score
}

// analyze parses src and reports its declarations. Files that fail to parse
// (build-tag experiments, templates with a .go suffix) fall back to a
// line-oriented scan.
func analyze(filename string, src []byte) fileFacts {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return analyzeText(src)
	}

	facts := fileFacts{pkg: file.Name.Name}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			facts.functions++
		case *ast.GenDecl:
			if d.Tok == token.CONST {
				facts.hasConsts = true
			}
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				switch ts.Type.(type) {
				case *ast.StructType:
					facts.hasStructs = true
				case *ast.InterfaceType:
					facts.hasInterfaces = true
				}
			}
		}
	}
	return facts
}

var (
	rePackage   = regexp.MustCompile(`(?m)^package\s+(\w+)`)
	reFunc      = regexp.MustCompile(`(?m)^func\s+`)
	reStruct    = regexp.MustCompile(`(?m)^type\s+\w+\s+struct\s*\{`)
	reInterface = regexp.MustCompile(`(?m)^type\s+\w+\s+interface\s*\{`)
	reConst     = regexp.MustCompile(`(?m)^const\s+`)
)

func analyzeText(src []byte) fileFacts {
	facts := fileFacts{pkg: "unknown"}
	if m := rePackage.FindSubmatch(src); m != nil {
		facts.pkg = string(m[1])
	}
	facts.functions = len(reFunc.FindAllIndex(src, -1))
	facts.hasStructs = reStruct.Match(src)
	facts.hasInterfaces = reInterface.Match(src)
	facts.hasConsts = reConst.Match(src)
	return facts
}
