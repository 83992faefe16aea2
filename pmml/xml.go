package pmml

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

// Write serializes the document as indented XML.
func Write(w io.Writer, doc *PMML) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// MarshalXML writes the predicate with its values as a space-separated Array.
func (p *SimpleSetPredicate) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	type array struct {
		Type  string `xml:"type,attr"`
		N     int    `xml:"n,attr"`
		Value string `xml:",chardata"`
	}
	type predicate struct {
		Field    string      `xml:"field,attr"`
		Operator SetOperator `xml:"booleanOperator,attr"`
		Array    array       `xml:"Array"`
	}
	arrayType := p.ArrayType
	if arrayType == "" {
		arrayType = "string"
	}
	out := predicate{
		Field:    p.Field,
		Operator: p.Operator,
		Array:    array{Type: arrayType, N: len(p.Values), Value: FormatArray(p.Values)},
	}
	start.Name = xml.Name{Local: "SimpleSetPredicate"}
	return e.EncodeElement(out, start)
}

// FormatArray joins array values, quoting those that contain spaces or quotes.
func FormatArray(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == "" || strings.ContainsAny(v, " \t\"") {
			v = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
		}
		parts[i] = v
	}
	return strings.Join(parts, " ")
}

// FormatFloat32 formats a float32 value with the shortest round-tripping representation.
func FormatFloat32(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// FormatFloat64 formats a float64 value with the shortest round-tripping representation.
func FormatFloat64(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
