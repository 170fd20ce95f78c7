// Package command interprets the chat protocol: one inbound text line is
// tokenized and classified into a tagged Intent, fully validated, and only
// then applied to the student's configuration as a single storage operation.
// A rejected command leaves no trace.
package command
