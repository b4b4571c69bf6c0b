// Package reading turns a user-declared calibration range into a gauge
// reading. It contains:
//
//   - CalibrationRange: a validated [Min, Max] interval, only obtainable
//     through ParseRange so the pair can never be half-updated
//   - ValidationError: the structured failure (MissingInput, NotANumber,
//     RangeOrderInvalid) returned instead of a reading
//   - Estimator: the simulated reading, a uniform draw inside the range
//     rounded to two decimals
//   - Record: a produced reading as reported by the server and client
//
// Callers decide how to present failures; Kind.UserMessage returns the two
// messages the mobile app used to show.
package reading
