// Package process describes how a process joins a shared multi-process runtime.
//
// It resolves the runtime directory layout for a file prefix, decides whether this
// process is the primary or a secondary, holds the primary's lock on the runtime
// config file, and tracks when process startup has completed. A *Runtime is what
// the mp channel consumes to learn its role, its socket prefix and whether unknown
// requests should be answered with an ignore reply. ShutdownManager releases
// the channel and the lock in reverse order when the process stops.
//
// Layout for RuntimeDir=/run/mpchan and FilePrefix=app:
//
//	/run/mpchan/app/config                  primary lock file
//	/run/mpchan/app/mp_socket               primary socket
//	/run/mpchan/app/mp_socket_<pid>_<hex>   secondary sockets
package process
