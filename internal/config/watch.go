/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package config

import (
	"github.com/fsnotify/fsnotify"
)

// Watcher watches the files handed to WatchFiles and calls onChange whenever
// one is rewritten. cmd/supernode passes only the allowed-communities file,
// driving the same reload path as the reload_communities JSON-RPC method;
// the running config file is not watched.
type Watcher struct {
	w *fsnotify.Watcher
}

// WatchFiles starts watching every non-empty path in files, calling
// onChange on any Write or Create event. The caller owns the returned
// Watcher and must Close it on shutdown.
func WatchFiles(onChange func(path string), files ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := fw.Add(f); err != nil {
			fw.Close()
			return nil, err
		}
	}

	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange(ev.Name)
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return &Watcher{w: fw}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.w.Close()
}
