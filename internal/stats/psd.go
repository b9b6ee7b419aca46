// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package stats

import (
	"errors"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Returned when a spectrum is requested for data of the wrong dimensionality
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Default Welch segment length, as in scipy.signal.welch
const WelchSegment = 256

// Power spectral density of one-dimensional data using Welch's method with a
// periodic Hann window, half-overlapping segments, mean detrending and density
// scaling at unit sampling frequency. Returns the frequencies and the one-sided
// spectrum. Fails with ErrDimensionMismatch unless naxisn has exactly one axis.
func PowerSpectrum1D(data []float32, naxisn []int32) (freqs, psd []float64, err error) {
	if len(naxisn) != 1 || len(data) == 0 {
		return nil, nil, ErrDimensionMismatch
	}
	n := len(data)
	seg := WelchSegment
	if seg > n {
		seg = n
	}
	step := seg - seg/2

	// periodic window of length seg is the symmetric one of length seg+1, truncated
	ones := make([]float64, seg+1)
	for i := range ones {
		ones[i] = 1
	}
	win := window.Hann(ones)[:seg]
	winSq := 0.0
	for _, w := range win {
		winSq += w * w
	}

	fft := fourier.NewFFT(seg)
	psd = make([]float64, seg/2+1)
	buf := make([]float64, seg)
	var coeffs []complex128
	segments := 0
	for start := 0; start+seg <= n; start += step {
		mean := 0.0
		for i := 0; i < seg; i++ {
			mean += float64(data[start+i])
		}
		mean /= float64(seg)
		for i := 0; i < seg; i++ {
			buf[i] = (float64(data[start+i]) - mean) * win[i]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		for k, c := range coeffs {
			a := cmplx.Abs(c)
			psd[k] += a * a
		}
		segments++
	}

	scale := 1 / (winSq * float64(segments))
	for k := range psd {
		psd[k] *= scale
		if k > 0 && !(seg%2 == 0 && k == seg/2) {
			psd[k] *= 2
		}
	}

	freqs = make([]float64, len(psd))
	for k := range freqs {
		freqs[k] = float64(k) / float64(seg)
	}
	return freqs, psd, nil
}

// Two-dimensional power spectrum |FFT2(data)|^2 * freqScale^2, shifted so the
// zero frequency sits at (width/2, height/2). Result is row-major like the input.
// Fails with ErrDimensionMismatch unless naxisn has exactly two axes.
func PowerSpectrum2D(data []float32, naxisn []int32, freqScale float64) ([]float64, error) {
	if len(naxisn) != 2 || int(naxisn[0])*int(naxisn[1]) != len(data) || len(data) == 0 {
		return nil, ErrDimensionMismatch
	}
	width, height := int(naxisn[0]), int(naxisn[1])

	work := make([]complex128, len(data))
	for i, d := range data {
		work[i] = complex(float64(d), 0)
	}

	// transform rows, then columns
	rowFFT := fourier.NewCmplxFFT(width)
	row := make([]complex128, width)
	for y := 0; y < height; y++ {
		line := work[y*width : (y+1)*width]
		row = rowFFT.Coefficients(row, line)
		copy(line, row)
	}
	colFFT := fourier.NewCmplxFFT(height)
	col := make([]complex128, height)
	out := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = work[y*width+x]
		}
		out = colFFT.Coefficients(out, col)
		for y := 0; y < height; y++ {
			work[y*width+x] = out[y]
		}
	}

	power := make([]float64, len(data))
	for y := 0; y < height; y++ {
		sy := (y + height/2) % height
		for x := 0; x < width; x++ {
			sx := (x + width/2) % width
			a := cmplx.Abs(work[y*width+x]) * freqScale
			power[sy*width+sx] = a * a
		}
	}
	return power, nil
}

// Mean power of a spectrum produced by PowerSpectrum2D, normalized by the number of
// samples. By Parseval's theorem this equals the mean squared value of the input.
func MeanPower(power []float64) float64 {
	if len(power) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range power {
		sum += p
	}
	n := float64(len(power))
	return sum / (n * n)
}
