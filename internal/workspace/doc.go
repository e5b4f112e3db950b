// Package workspace connects a directory tree to the analysis monitor.
//
// Discover walks the tree and returns one event per source file. Sweep
// hands those events to the monitor for a one-off analysis of everything.
// Watch installs fsnotify watches so that writes become save events and
// deletions clear the published issues:
//
//	ws, err := workspace.New(root, mon, nil)
//	if err != nil {
//	    return err
//	}
//	w, err := ws.Watch()
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	return w.Run(ctx)
//
// Hidden directories, vendor and common build output directories are
// skipped. Files whose extension has no known language are ignored.
package workspace
