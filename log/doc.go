// Package log is the printf-style logging layer shared by the stores, the
// graph engine and the agents. The default backend is kataras/golog; swap it
// with SetDefaultLogger or pass a Logger to a component option.
package log
