// Package telemetry records event bus metrics through OpenTelemetry.
package telemetry
