package lms

import "strings"

// Field is one decoded name:value pair.
type Field struct {
	Tag   Tag
	Name  string
	Value string
}

// Decoder walks the tokens of one response line.
type Decoder struct {
	ctx    Context
	tokens []string
	pos    int
}

// NewDecoder creates a decoder resolving tag names in ctx.
func NewDecoder(ctx Context) *Decoder {
	return &Decoder{ctx: ctx}
}

// Set replaces the line and resets the cursor.
func (d *Decoder) Set(line string) {
	d.tokens = strings.Fields(line)
	d.pos = 0
}

// SetContext switches the namespace used for following lookups.
func (d *Decoder) SetContext(ctx Context) {
	d.ctx = ctx
}

// Context returns the active parsing context.
func (d *Decoder) Context() Context {
	return d.ctx
}

// Next returns the next field. It returns ErrEndOfPacket when the line is
// exhausted and ErrUnknownTag, with the field filled in, for names not in
// the tag table.
func (d *Decoder) Next() (Field, error) {
	if d.pos >= len(d.tokens) {
		return Field{}, ErrEndOfPacket
	}

	token := Unescape(d.tokens[d.pos])
	d.pos++

	name, value, hasValue := strings.Cut(token, ":")

	// multi-word tags sent unescaped arrive split, e.g. "playlist" "index:0"
	if !hasValue && d.pos < len(d.tokens) {
		joined := name + " " + Unescape(d.tokens[d.pos])
		jname, jvalue, _ := strings.Cut(joined, ":")
		if LookupTag(jname, d.ctx) != TagUnknown && strings.Contains(jname, " ") {
			d.pos++
			name, value = jname, jvalue
		}
	}

	f := Field{Tag: LookupTag(name, d.ctx), Name: name, Value: value}
	if f.Tag == TagUnknown {
		return f, ErrUnknownTag
	}

	return f, nil
}
