package world

import "math"

// valueNoise is a deterministic 2D value noise with octaves, used for colour
// jitter on generated terrain.
type valueNoise struct {
	seed        int64
	octaves     int
	persistence float64
	lacunarity  float64
}

func smoothstep(t float64) float64 {
	// 6t^5 - 15t^4 + 10t^3
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// hash2 is a SplitMix64 style integer hash, stable across runs.
func hash2(x, z, seed int64) uint64 {
	v := uint64(x) + (uint64(z) << 1) + uint64(seed)*0x9E3779B97F4A7C15
	v += 0x9E3779B97F4A7C15
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	return v ^ (v >> 31)
}

func lattice(x, z, seed int64) float64 {
	return float64(hash2(x, z, seed)&0xFFFFFFFF) / float64(0xFFFFFFFF)
}

func sample2D(x, z float64, seed int64) float64 {
	x0, z0 := math.Floor(x), math.Floor(z)
	fx, fz := smoothstep(x-x0), smoothstep(z-z0)
	ix, iz := int64(x0), int64(z0)

	top := lerp(lattice(ix, iz, seed), lattice(ix+1, iz, seed), fx)
	bottom := lerp(lattice(ix, iz+1, seed), lattice(ix+1, iz+1, seed), fx)
	return lerp(top, bottom, fz)
}

// at returns a value in [0,1].
func (n valueNoise) at(x, z float64) float64 {
	amplitude, frequency := 1.0, 1.0
	sum, norm := 0.0, 0.0
	for i := range n.octaves {
		sum += sample2D(x*frequency, z*frequency, n.seed+int64(i*131)) * amplitude
		norm += amplitude
		amplitude *= n.persistence
		frequency *= n.lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}
