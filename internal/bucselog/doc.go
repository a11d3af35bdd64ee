// Package bucselog implements the structured logger shared by every bucse
// component: cache, reconciler, block engine, storage backends, and the FUSE
// bridges. See Logger and Level.
package bucselog
