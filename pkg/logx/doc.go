// Package logx configures agendabot's structured logging.
//
// A small wrapper (logx.Logger) sits on top of zerolog and keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional operator sink (min-level + rate limiting) that forwards
//     warnings and errors to a chat the operator watches
package logx
