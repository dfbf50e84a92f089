package aerostat

import "strings"

// CommandEncoder frames operator commands for the transport. Values are sent
// as typed by the operator, only emptiness is checked.
type CommandEncoder struct {
	Revision *Revision
}

func NewCommandEncoder(rev *Revision) *CommandEncoder {
	if rev == nil {
		rev = RevisionB
	}
	return &CommandEncoder{Revision: rev}
}

// Encode returns the wire bytes for cmd, "<ballast>,<gas>\r\n" for the
// current revision.
func (e *CommandEncoder) Encode(cmd OutboundCommand) ([]byte, error) {
	if cmd.Ballast == "" || cmd.Gas == "" {
		return nil, ErrEmptyCommandField
	}
	var sb strings.Builder
	if e.Revision.CommandPrefix != "" {
		sb.WriteString(e.Revision.CommandPrefix)
		sb.WriteString(fieldDelimiter)
	}
	sb.WriteString(cmd.Ballast)
	sb.WriteString(fieldDelimiter)
	sb.WriteString(cmd.Gas)
	sb.WriteString(e.Revision.CommandTerminator)
	return []byte(sb.String()), nil
}
