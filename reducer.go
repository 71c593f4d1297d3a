// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package throttle

import "reflect"

// Count is a Reducer which ignores action results and counts iterations.
func Count[R any](acc int, _ R) int { return acc + 1 }

// Collect is a Reducer which appends every action result to the accumulator.
func Collect[R any](acc []R, last R) []R { return append(acc, last) }

// countReducer returns increment-by-one reducer when A is an integer or a
// floating point type (including named types based on those). Second value is
// false for other types.
func countReducer[A, R any]() (Reducer[A, R], bool) {
	switch kind := reflect.TypeOf((*A)(nil)).Elem().Kind(); kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(acc A, _ R) A {
			v := reflect.ValueOf(&acc).Elem()
			v.SetInt(v.Int() + 1)
			return acc
		}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		return func(acc A, _ R) A {
			v := reflect.ValueOf(&acc).Elem()
			v.SetUint(v.Uint() + 1)
			return acc
		}, true
	case reflect.Float32, reflect.Float64:
		return func(acc A, _ R) A {
			v := reflect.ValueOf(&acc).Elem()
			v.SetFloat(v.Float() + 1)
			return acc
		}, true
	}
	return nil, false
}
