package foam

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	indentUnit = "    "
	keyWidth   = 16
)

const banner = `/*--------------------------------*- C++ -*----------------------------------*\
  =========                 |
  \\      /  F ield         | OpenFOAM: The Open Source CFD Toolbox
   \\    /   O peration     |
    \\  /    A nd           | Written by cfdcase
     \\/     M anipulation  |
\*---------------------------------------------------------------------------*/
`

const (
	separator = "// * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * //\n"
	footer    = "// ************************************************************************* //\n"
)

// File is one dictionary file with its FoamFile header
type File struct {
	Class    string
	Location string
	Object   string
	Body     *Dict
}

// Encode renders the file. The output depends only on the file contents.
func (f File) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(banner)

	header := NewDict().
		Set("version", Raw("2.0")).
		Set("format", Word("ascii")).
		Set("class", Word(f.Class))
	if f.Location != "" {
		header.Set("location", Quoted(f.Location))
	}
	header.Set("object", Word(f.Object))

	if err := writeDict(&buf, "FoamFile", header, 0); err != nil {
		return nil, err
	}
	buf.WriteString(separator)
	buf.WriteString("\n")

	if f.Body != nil {
		if err := writeEntries(&buf, f.Body, 0); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", f.Object, err)
		}
	}

	buf.WriteString("\n")
	buf.WriteString(footer)
	return buf.Bytes(), nil
}

func writeEntries(buf *bytes.Buffer, d *Dict, depth int) error {
	for i, e := range d.entries {
		if sub, ok := e.value.(*Dict); ok {
			if i > 0 && depth == 0 {
				buf.WriteString("\n")
			}
			if err := writeDict(buf, e.key, sub, depth); err != nil {
				return err
			}
			continue
		}
		if list, ok := e.value.(List); ok && !list.inline() {
			if err := writeBlockList(buf, e.key, list, depth); err != nil {
				return err
			}
			continue
		}
		text, err := formatValue(e.value)
		if err != nil {
			return fmt.Errorf("entry %s: %w", e.key, err)
		}
		writeIndent(buf, depth)
		if text == "" {
			buf.WriteString(e.key + ";\n")
			continue
		}
		buf.WriteString(padKey(e.key) + text + ";\n")
	}
	return nil
}

func writeDict(buf *bytes.Buffer, key string, d *Dict, depth int) error {
	writeIndent(buf, depth)
	buf.WriteString(key + "\n")
	writeIndent(buf, depth)
	buf.WriteString("{\n")
	if err := writeEntries(buf, d, depth+1); err != nil {
		return err
	}
	writeIndent(buf, depth)
	buf.WriteString("}\n")
	return nil
}

func writeBlockList(buf *bytes.Buffer, key string, list List, depth int) error {
	writeIndent(buf, depth)
	buf.WriteString(key + "\n")
	writeIndent(buf, depth)
	buf.WriteString("(\n")
	for i, item := range list {
		if k, ok := item.(Keyed); ok {
			if err := writeDict(buf, k.Key, k.Dict, depth+1); err != nil {
				return fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			continue
		}
		if sub, ok := item.(*Dict); ok {
			writeIndent(buf, depth+1)
			buf.WriteString("{\n")
			if err := writeEntries(buf, sub, depth+2); err != nil {
				return fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			writeIndent(buf, depth+1)
			buf.WriteString("}\n")
			continue
		}
		text, err := formatValue(item)
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		writeIndent(buf, depth+1)
		buf.WriteString(text + "\n")
	}
	writeIndent(buf, depth)
	buf.WriteString(");\n")
	return nil
}

// inline reports whether the list fits on one line
func (l List) inline() bool {
	if len(l) > 6 {
		return false
	}
	for _, item := range l {
		switch item.(type) {
		case *Dict, Keyed, List, Vector:
			return false
		}
	}
	return true
}

func formatValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case Word:
		return string(val), nil
	case Quoted:
		return strconv.Quote(string(val)), nil
	case Raw:
		return string(val), nil
	case string:
		return val, nil
	case float64:
		return FormatScalar(val), nil
	case int:
		return strconv.Itoa(val), nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case Vector:
		return formatVector(val), nil
	case Dimensions:
		return formatDimensions(val), nil
	case Dimensioned:
		return formatDimensions(val.Dims) + " " + FormatScalar(val.Value), nil
	case Uniform:
		inner, err := formatValue(val.Value)
		if err != nil {
			return "", err
		}
		return "uniform " + inner, nil
	case List:
		parts := make([]string, len(val))
		for i, item := range val {
			text, err := formatValue(item)
			if err != nil {
				return "", err
			}
			parts[i] = text
		}
		return "(" + strings.Join(parts, " ") + ")", nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

func padKey(key string) string {
	if len(key) >= keyWidth {
		return key + " "
	}
	return key + strings.Repeat(" ", keyWidth-len(key))
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString(indentUnit)
	}
}

// Document is a file placed at a path relative to a stage sub-tree. Data is
// written verbatim when File is nil. A non-empty Link makes the document a
// symbolic link to that target instead of a file.
type Document struct {
	Path       string
	File       *File
	Data       []byte
	Executable bool
	Link       string
}

// Bytes returns the file contents
func (d Document) Bytes() ([]byte, error) {
	if d.File == nil {
		return d.Data, nil
	}
	return d.File.Encode()
}
