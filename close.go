package gvsingest

// Close releases the executor held by this Loader. Only the first call
// closes it; later calls return the first result.
func (l *Loader) Close() error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		if l.exec != nil {
			l.closeErr = l.exec.Close()
		}
	})
	return l.closeErr
}
