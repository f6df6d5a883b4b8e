// Package common provides core data structures and utilities shared across
// the task server and its clients. It defines the protocol messages, configuration
// structures and the logger used by other packages.
//
// Key Components:
//
//   - ClientRequest / ServerResponse: A request is an ordered batch of commands,
//     a response holds exactly one result per command at the same position.
//
//   - Command: A closed set of operations (CreateTask, ListPending, ListCompleted,
//     MarkDone, RenameTask, SetPriority, GetByID). Every command knows its wire
//     tag (CommandType). Code outside this package can not add variants, so type
//     switches over commands only have to handle the listed types.
//
//   - Result and Value: A result is either a Success carrying a Value (a single
//     task, a list of tasks or an acknowledgement) or a Failure carrying the error
//     message of the store.
//
//   - ServerConfig: Configuration for server nodes, including the store type,
//     RAFT parameters, dispatcher limits and transport settings.
//     Provides utilities for converting to Dragonboat-specific configurations.
//
//   - ClientConfig: Configuration for client components, controlling endpoints,
//     connection pooling, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
