// Package config holds the configuration store a bootstrapped application
// reads from, and the loaders that populate it from configuration units.
//
// # Store
//
// Store is an ordered mapping addressed by dotted paths ("app.env",
// "database.connections.testing"). A Set on a path fully replaces whatever
// was there; nothing is deep-merged unless the caller asks for it with
// Merge. Once the bootstrap pipeline finishes it freezes the store; writes
// after that point panic because they would leak into the next test's
// expectations.
//
// # Configuration Units
//
// A unit is one file in a config directory. The file stem is the unit name
// and becomes the top-level key:
//
//	config/
//	  app.yaml       -> app.*
//	  database.json  -> database.*
//	  queue.cue      -> queue.*
//
// Units are read in file-name order. When <base>/config does not exist the
// bundled defaults embedded in this package are used instead.
//
// The workbench-aware loader additionally looks in <workbench>/config: a unit
// present there replaces the base unit of the same name wholesale.
//
// # Environment Expansion
//
// String values may reference the process environment:
//
//	name: ${APP_NAME:-Testbench}
//	debug: ${APP_DEBUG:-(true)}
//
// When a value consists of a single reference, the resolved text is cast:
// "(true)"/"true" -> true, "(false)"/"false" -> false, "(null)"/"null" -> nil,
// "(empty)"/"empty" -> "".
package config
