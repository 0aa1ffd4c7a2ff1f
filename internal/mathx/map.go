package mathx

import "golang.org/x/exp/constraints"

// Map re-maps x from [inMin,inMax] onto [outMin,outMax] using integer
// arithmetic with truncation, the same way the Arduino core map() does.
// Output ranges may be inverted (outMin > outMax). The input is not clamped.
func Map[T constraints.Signed](x, inMin, inMax, outMin, outMax T) T {
	if inMax == inMin {
		return outMin
	}
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}
