package datatype

import "math"

// MaxQuantized returns the largest value a quantization of bits can hold.
func MaxQuantized(bits int) uint32 {
	if bits <= 0 {
		return 0
	}
	if bits >= 32 {
		return math.MaxUint32
	}
	return 1<<uint(bits) - 1
}

// Dequantize reconstructs a linearly quantized component:
// min + encoded/((1<<bits)-1) * rng.
func Dequantize(encoded uint32, bits int, min, rng float32) float32 {
	maxQ := MaxQuantized(bits)
	if maxQ == 0 {
		return min
	}
	return min + float32(float64(encoded)/float64(maxQ))*rng
}

// Quantize maps value into [0, (1<<bits)-1] over [min, min+rng].
func Quantize(value float32, bits int, min, rng float32) uint32 {
	maxQ := MaxQuantized(bits)
	if rng == 0 || maxQ == 0 {
		return 0
	}
	t := float64(value-min) / float64(rng)
	t = math.Max(0, math.Min(1, t))
	return uint32(math.Round(t * float64(maxQ)))
}

// OctDecode reconstructs a unit vector from two octahedral components in
// [0, (1<<bits)-1].
func OctDecode(x, y uint32, bits int) [3]float32 {
	rangeMax := float64(MaxQuantized(bits))
	vx := fromSNorm(float64(x), rangeMax)
	vy := fromSNorm(float64(y), rangeMax)
	vz := 1 - (math.Abs(vx) + math.Abs(vy))

	if vz < 0 {
		oldX := vx
		vx = (1 - math.Abs(vy)) * signNotZero(oldX)
		vy = (1 - math.Abs(oldX)) * signNotZero(vy)
	}

	n := math.Sqrt(vx*vx + vy*vy + vz*vz)
	if n == 0 {
		return [3]float32{0, 0, 1}
	}
	return [3]float32{float32(vx / n), float32(vy / n), float32(vz / n)}
}

// OctEncode maps a non-zero vector onto two octahedral components.
func OctEncode(v [3]float32, bits int) (x, y uint32) {
	rangeMax := float64(MaxQuantized(bits))
	vx, vy, vz := float64(v[0]), float64(v[1]), float64(v[2])
	sum := math.Abs(vx) + math.Abs(vy) + math.Abs(vz)
	if sum == 0 {
		return toSNorm(0, rangeMax), toSNorm(0, rangeMax)
	}
	rx, ry := vx/sum, vy/sum

	if vz < 0 {
		oldX := rx
		rx = (1 - math.Abs(ry)) * signNotZero(oldX)
		ry = (1 - math.Abs(oldX)) * signNotZero(ry)
	}
	return toSNorm(rx, rangeMax), toSNorm(ry, rangeMax)
}

func fromSNorm(v, rangeMax float64) float64 {
	if rangeMax == 0 {
		return 0
	}
	return math.Max(0, math.Min(v, rangeMax))/rangeMax*2 - 1
}

func toSNorm(v, rangeMax float64) uint32 {
	v = math.Max(-1, math.Min(1, v))
	return uint32(math.Round((v*0.5 + 0.5) * rangeMax))
}

func signNotZero(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
