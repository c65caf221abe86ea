package resource

// Typed entry points used by the host imports. Every constructor returns a
// persistent handle the guest owns and must release with DropRef.

func (t *Table) StringNew(s string) Handle {
	return t.Add(String(s), Persistent)
}

func (t *Table) NumberNew(f float64) Handle {
	return t.Add(Number(f), Persistent)
}

// BooleanNew stores true only for the exact value 1.
func (t *Table) BooleanNew(v uint32) Handle {
	return t.Add(Bool(v == 1), Persistent)
}

func (t *Table) NullNew() Handle {
	return t.Add(Null(), Persistent)
}

func (t *Table) UndefinedNew() Handle {
	return t.Add(Undefined(), Persistent)
}

// SymbolNew creates a fresh symbol, described only when hasDesc is set.
func (t *Table) SymbolNew(desc string, hasDesc bool) Handle {
	if !hasDesc {
		return t.Add(NewAnonymousSymbol(), Persistent)
	}
	return t.Add(NewSymbol(desc), Persistent)
}

// NumberGet returns the number behind h; ok is false for non-numbers.
func (t *Table) NumberGet(h Handle) (float64, bool, error) {
	v, err := t.Get(h)
	if err != nil {
		return 0, false, err
	}
	f, ok := v.AsNumber()
	return f, ok, nil
}

// BooleanGet returns 1 for true, 0 for false and 2 for non-booleans.
func (t *Table) BooleanGet(h Handle) (uint32, error) {
	v, err := t.Get(h)
	if err != nil {
		return 0, err
	}
	b, ok := v.AsBool()
	switch {
	case !ok:
		return 2, nil
	case b:
		return 1, nil
	default:
		return 0, nil
	}
}

// StringGet returns the text behind h; ok is false for non-strings.
func (t *Table) StringGet(h Handle) (string, bool, error) {
	v, err := t.Get(h)
	if err != nil {
		return "", false, err
	}
	s, ok := v.AsString()
	return s, ok, nil
}

func (t *Table) IsNull(h Handle) (bool, error) {
	v, err := t.Get(h)
	if err != nil {
		return false, err
	}
	return v.IsNull(), nil
}

func (t *Table) IsUndefined(h Handle) (bool, error) {
	v, err := t.Get(h)
	if err != nil {
		return false, err
	}
	return v.IsUndefined(), nil
}

func (t *Table) IsSymbol(h Handle) (bool, error) {
	v, err := t.Get(h)
	if err != nil {
		return false, err
	}
	return v.IsSymbol(), nil
}
