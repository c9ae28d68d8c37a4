// Package common provides the logging setup and the command configuration
// shared by the htrie commands.
//
// The loggers of all packages are dragonboat loggers obtained through
// logger.GetLogger. InitLoggers replaces dragonboats default factory with a
// plain formatter that writes to stderr and sets the level of every named
// logger of this module.
package common
