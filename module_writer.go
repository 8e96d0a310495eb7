package rdb

// moduleValueWriter serializes the opcode stream for a single module value.
// Only enough of the protocol to round-trip RedisJSON's v3 encoding is
// implemented: a module id, one string opcode carrying the JSON payload
// verbatim, and the EOF opcode every module stream must end with.
type moduleValueWriter struct {
	writer *Writer
}

func (w *moduleValueWriter) WriteJSON(json string) error {
	if err := w.writeModuleID(jsonModuleID, jsonModuleV3); err != nil {
		return err
	}
	if err := w.writeString(json); err != nil {
		return err
	}
	return w.writeEOF()
}

// writeModuleID packs a module's 54 bit name id and 10 bit version into the
// single length-encoded integer ReadModule2 expects to find.
func (w *moduleValueWriter) writeModuleID(id, version uint64) error {
	packed := (id &^ 0x3FF) | (version & 0x3FF)
	return w.writer.writeLen(packed)
}

func (w *moduleValueWriter) writeString(value string) error {
	if err := w.writer.writeLen(moduleOpCodeString); err != nil {
		return err
	}
	return w.writer.WriteString(value)
}

func (w *moduleValueWriter) writeEOF() error {
	return w.writer.writeLen(moduleOpCodeEOF)
}
