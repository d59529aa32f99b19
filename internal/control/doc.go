// Package control provides the roll-stabilization controller and its
// roll-angle estimator.
//
//   - [Estimator]: trapezoidal integration of roll rate into roll angle
//   - [Roll]: discrete PID with sample-and-hold, slew-rate limit and
//     fin-angle saturation
//   - [None]: zero-deflection baseline that still tracks roll
//
// # Usage
//
//	ctrl := control.NewRoll(control.DefaultConfig())
//	fin := ctrl.Update(t, rollRate) // once per physics step
//	ctrl.Reset()                    // between runs
//
// A controller belongs to one run at a time and is not safe for concurrent use.
package control
