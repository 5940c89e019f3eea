// Package testutil contains internal fluent builders shared by tests.
package testutil
