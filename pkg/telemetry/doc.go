// Package telemetry provides structured logging and Prometheus metrics
// for the compile and planning pipeline. Logging configuration comes from
// the same store as everything else (Sim.LogLevel, Sim.LogFormat).
package telemetry
