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

package shave

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/balco-astro/balco/internal/catalog"
	"github.com/valyala/fastrand"
)

var scenario = []float32{
	10, 300, 10, 10,
	10, 10, 10, 10,
	10, 10, 10, 400,
	10, 10, 10, 10,
}

var scenarioShaved = []float32{
	10, 298, 10, 10,
	10, 10, 10, 10,
	10, 10, 10, 402,
	10, 10, 10, 10,
}

func equalFloat32(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func randomImage(n int, max uint32) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(fastrand.Uint32n(max))
	}
	return data
}

func TestLocate(t *testing.T) {
	data := append([]float32(nil), scenario...)
	flags := Locate(data, 4, DefaultThreshold)
	want := []FlaggedPixel{{300, 0, 1}, {400, 2, 3}}
	if len(flags) != len(want) {
		t.Fatalf("got %v, want %v", flags, want)
	}
	for i := range want {
		if flags[i] != want[i] {
			t.Errorf("flag %d: got %v, want %v", i, flags[i], want[i])
		}
	}
	if !equalFloat32(data, scenario) {
		t.Errorf("input modified: %v", data)
	}

	// strictly greater than the threshold
	if flags := Locate([]float32{255, 254, 0, 1}, 2, 255); len(flags) != 0 {
		t.Errorf("got %v, want no flags", flags)
	}
}

func TestRestoreFlags(t *testing.T) {
	data := append([]float32(nil), scenarioShaved...)
	RestoreFlags(data, 4, Locate(scenario, 4, DefaultThreshold))
	if data[1] != 300 || data[11] != 400 {
		t.Errorf("got %v", data)
	}
}

func TestQuantizeScenario(t *testing.T) {
	res, err := QuantizeDetailed(scenario, 2, QuantizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Median != 10 || res.Min != 0 {
		t.Errorf("median/min: got %g/%g, want 10/0", res.Median, res.Min)
	}
	if !equalFloat32(res.Data, scenarioShaved) {
		t.Errorf("got %v, want %v", res.Data, scenarioShaved)
	}
}

func TestQuantizeInvalidBits(t *testing.T) {
	for _, bits := range []int{-1, 0, 6, 8} {
		q, err := Quantize(scenario, bits, QuantizeOptions{})
		if !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("bits %d: got error %v, want ErrInvalidParameter", bits, err)
		}
		if q != nil {
			t.Errorf("bits %d: got output %v, want none", bits, q)
		}
	}
}

func TestQuantizeRoundTripBound(t *testing.T) {
	for bits := MinBits; bits <= MaxBits; bits++ {
		limit := float32(int(1) << bits)
		for round := 0; round < 20; round++ {
			data := randomImage(1+int(fastrand.Uint32n(500)), 65536)
			q, err := Quantize(data, bits, QuantizeOptions{})
			if err != nil {
				t.Fatal(err)
			}
			for i := range data {
				d := q[i] - data[i]
				if d < 0 {
					d = -d
				}
				if d >= limit {
					t.Errorf("bits %d: pixel %d: got %g from %g, difference %g >= %g", bits, i, q[i], data[i], d, limit)
				}
			}
		}
	}
}

func TestQuantizeIdempotence(t *testing.T) {
	tests := []struct {
		data []float32
		bits int
		want []float32
	}{
		{scenario, 2, scenarioShaved},
		{[]float32{100, 105, 117, 130, 99, 101, 250, 1000}, 3, []float32{99, 107, 115, 131, 99, 99, 251, 1003}},
	}
	for _, test := range tests {
		once, err := Quantize(test.data, test.bits, QuantizeOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if !equalFloat32(once, test.want) {
			t.Errorf("once: got %v, want %v", once, test.want)
		}
		twice, err := Quantize(once, test.bits, QuantizeOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if !equalFloat32(twice, once) {
			t.Errorf("twice: got %v, want %v", twice, once)
		}
	}
}

func TestQuantizeBoundaryCorrection(t *testing.T) {
	// 254/16 is exactly 15.875
	res, err := QuantizeDetailed([]float32{0, 0, 0, 254}, 4, QuantizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Corrections != 1 || res.Data[3] != 16*16 {
		t.Errorf("got %v with %d corrections, want 256 with 1", res.Data, res.Corrections)
	}

	// a custom table rounds up where half to even would round down
	opts := QuantizeOptions{Boundaries: Boundaries{4: 14.5}}
	res, err = QuantizeDetailed([]float32{0, 0, 0, 232}, 4, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Data[3] != 256 {
		t.Errorf("custom boundary: got %g, want 256", res.Data[3])
	}
	if q, _ := Quantize([]float32{0, 0, 0, 232}, 4, QuantizeOptions{}); q[3] != 224 {
		t.Errorf("half to even: got %g, want 224", q[3])
	}

	if _, err := Quantize(scenario, 3, opts); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("missing boundary: got %v, want ErrInvalidParameter", err)
	}
}

func TestQuantizeZeroNegatives(t *testing.T) {
	data := []float32{-5, 10, 10, 10}
	res, err := QuantizeDetailed(data, 1, QuantizeOptions{ZeroNegatives: true})
	if err != nil {
		t.Fatal(err)
	}
	if want := []float32{0, 10, 10, 10}; !equalFloat32(res.Data, want) || res.Negatives != 1 {
		t.Errorf("got %v with %d negatives, want %v with 1", res.Data, res.Negatives, want)
	}
	q, _ := Quantize(data, 1, QuantizeOptions{})
	if want := []float32{-5, 11, 11, 11}; !equalFloat32(q, want) {
		t.Errorf("without correction: got %v, want %v", q, want)
	}
	if data[0] != -5 {
		t.Errorf("input modified: %v", data)
	}
}

func TestQuantizeSkipsNaN(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		in, want []float32
	}{
		{[]float32{nan, 10, 10, 10, 400}, []float32{nan, 10, 10, 10, 402}},
		{[]float32{10, 300, nan, 10, 10}, []float32{10, 298, nan, 10, 10}},
		{[]float32{nan, nan}, []float32{nan, nan}},
	}
	for _, test := range tests {
		got, err := Quantize(test.in, 2, QuantizeOptions{})
		if err != nil {
			t.Fatal(err)
		}
		for i := range got {
			gNaN, wNaN := math.IsNaN(float64(got[i])), math.IsNaN(float64(test.want[i]))
			if gNaN != wNaN || (!gNaN && got[i] != test.want[i]) {
				t.Errorf("Quantize(%v)=%v; want %v", test.in, got, test.want)
				break
			}
		}
	}
}

func TestZeroWidth(t *testing.T) {
	entries := []catalog.Entry{{X: 1, Y: 1, A: 1, B: 1}}
	if flags := Locate(scenario, 0, 200); flags != nil {
		t.Errorf("Locate: got %v", flags)
	}
	if cookies, counts := CutCookies(scenario, 0, entries, DefaultSizeTiers()); cookies != nil || counts.Total() != 0 {
		t.Errorf("CutCookies: got %v %+v", cookies, counts)
	}
	if res, counts := MaskResiduals(scenario, -4, entries, DefaultSizeTiers()); res != nil || counts.Total() != 0 {
		t.Errorf("MaskResiduals: got %v %+v", res, counts)
	}
}

func TestClassify(t *testing.T) {
	tiers := DefaultSizeTiers()
	tests := []struct {
		a, b  float32
		tier  Tier
		width int32
	}{
		{1.0, 0.9, TierSmall, 3},
		{1.2, 0.95, TierSmall, 3},
		{1.2, 0.96, TierDefault, 10},
		{12, 5, TierMedium, 65},
		{10, 1, TierDefault, 10},
		{5, 2, TierDefault, 10},
	}
	for _, test := range tests {
		tier, hw := tiers.Classify(test.a, test.b)
		if tier != test.tier || hw != test.width {
			t.Errorf("a=%g b=%g: got %v/%d, want %v/%d", test.a, test.b, tier, hw, test.tier, test.width)
		}
	}
}

func TestCookieBoundsEdges(t *testing.T) {
	tiers := DefaultSizeTiers()
	tests := []struct {
		x, y float32
		want Bounds
	}{
		{0, 0, Bounds{0, 20, 0, 20}},
		{50, 40, Bounds{40, 60, 30, 50}},
		{50.5, 40.5, Bounds{40, 60, 30, 50}},
		{51.5, 41.5, Bounds{42, 62, 32, 52}},
		{99.5, 79.5, Bounds{80, 100, 60, 80}},
		{3, 79, Bounds{0, 20, 60, 80}},
		{99, 2, Bounds{80, 100, 0, 20}},
		{-4, 120, Bounds{0, 20, 60, 80}},
	}
	for _, test := range tests {
		got, tier := tiers.CookieBounds(5, 2, test.x, test.y, 100, 80)
		if tier != TierDefault || got != test.want {
			t.Errorf("(%g,%g): got %v %v, want %v", test.x, test.y, got, tier, test.want)
		}
	}

	// window larger than the image covers the whole image
	got, _ := tiers.CookieBounds(12, 5, 5, 5, 10, 10)
	if want := (Bounds{0, 10, 0, 10}); got != want {
		t.Errorf("oversized: got %v, want %v", got, want)
	}
}

func TestCookieContainment(t *testing.T) {
	tiers := DefaultSizeTiers()
	sizes := [][2]float32{{1, 0.5}, {5, 2}, {20, 10}}
	for round := 0; round < 2000; round++ {
		width := int32(130 + fastrand.Uint32n(200))
		height := int32(130 + fastrand.Uint32n(200))
		x := float32(fastrand.Uint32n(uint32(width+20))) - 10 + float32(fastrand.Uint32n(4))*0.25
		y := float32(fastrand.Uint32n(uint32(height+20))) - 10 + float32(fastrand.Uint32n(4))*0.25
		size := sizes[fastrand.Uint32n(uint32(len(sizes)))]

		b, _ := tiers.CookieBounds(size[0], size[1], x, y, width, height)
		_, hw := tiers.Classify(size[0], size[1])
		if b.Left < 0 || b.Left >= b.Right || b.Right > width || b.Top < 0 || b.Top >= b.Bottom || b.Bottom > height {
			t.Fatalf("(%g,%g) in %dx%d: bounds %v out of image", x, y, width, height, b)
		}
		if b.Width() != 2*hw || b.Height() != 2*hw {
			t.Fatalf("(%g,%g) in %dx%d: bounds %v, want side %d", x, y, width, height, b, 2*hw)
		}
	}
}

func testEntries() []catalog.Entry {
	return []catalog.Entry{
		{Flux: 1000, X: 10, Y: 10, A: 5, B: 2},
		{Flux: 500, X: 15, Y: 12, A: 1, B: 0.5},
		{Flux: 800, X: 62, Y: 1, A: 3, B: 3},
		{Flux: 200, X: 0, Y: 47, A: 1.1, B: 0.9},
	}
}

func TestCutCookiesAndSplice(t *testing.T) {
	width, height := int32(64), int32(48)
	data := randomImage(int(width*height), 5000)
	orig := append([]float32(nil), data...)

	cookies, counts := CutCookies(data, width, testEntries(), DefaultSizeTiers())
	if len(cookies) != 4 || counts.Small != 2 || counts.Default != 2 || counts.Total() != 4 {
		t.Fatalf("got %d cookies, counts %v", len(cookies), counts)
	}
	if !equalFloat32(data, orig) {
		t.Fatalf("input modified")
	}

	q, err := Quantize(data, 5, QuantizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	shaved := append([]float32(nil), q...)
	Splice(q, width, cookies)

	inside := make([]bool, len(data))
	for _, c := range cookies {
		for row := c.Bounds.Top; row < c.Bounds.Bottom; row++ {
			for col := c.Bounds.Left; col < c.Bounds.Right; col++ {
				i := row*width + col
				inside[i] = true
				if q[i] != orig[i] {
					t.Errorf("(%d,%d): got %g, want original %g", row, col, q[i], orig[i])
				}
			}
		}
	}
	for i := range q {
		if !inside[i] && q[i] != shaved[i] {
			t.Errorf("pixel %d outside cookies changed from %g to %g", i, shaved[i], q[i])
		}
	}
}

func TestSpliceLastWriteWins(t *testing.T) {
	width := int32(8)
	data := make([]float32, 64)
	ones, twos := make([]float32, 16), make([]float32, 16)
	for i := range ones {
		ones[i], twos[i] = 1, 2
	}
	Splice(data, width, []Cookie{
		{Bounds: Bounds{0, 4, 0, 4}, Pixels: ones},
		{Bounds: Bounds{2, 6, 2, 6}, Pixels: twos},
	})
	tests := []struct {
		row, col int32
		want     float32
	}{{1, 1, 1}, {3, 3, 2}, {5, 5, 2}, {3, 1, 1}, {7, 7, 0}}
	for _, test := range tests {
		if got := data[test.row*width+test.col]; got != test.want {
			t.Errorf("(%d,%d): got %g, want %g", test.row, test.col, got, test.want)
		}
	}
}

func TestMaskingRestoresExactly(t *testing.T) {
	width, height := int32(20), int32(20)
	data := randomImage(int(width*height), 3000)
	data[5*width+5] = 0
	orig := append([]float32(nil), data...)

	entries := []catalog.Entry{
		{X: 5, Y: 5, A: 1, B: 0.5},
		{X: 6, Y: 6, A: 1, B: 0.5},
	}
	residuals, counts := MaskResiduals(data, width, entries, DefaultSizeTiers())
	if counts.Small != 2 {
		t.Errorf("counts: got %v", counts)
	}
	if len(residuals) != 36+36-25 {
		t.Errorf("residuals: got %d, want %d", len(residuals), 36+36-25)
	}
	if !equalFloat32(data, orig) {
		t.Fatalf("input modified")
	}

	q, err := Quantize(data, 4, QuantizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	RestoreResiduals(q, width, residuals)
	for _, r := range residuals {
		i := r.Row*width + r.Col
		if q[i] != orig[i] {
			t.Errorf("(%d,%d): got %g, want %g", r.Row, r.Col, q[i], orig[i])
		}
	}
	if q[5*width+5] != 0 {
		t.Errorf("zero pixel inside window: got %g", q[5*width+5])
	}
}

func TestRun(t *testing.T) {
	p := DefaultParams()
	p.Bits = 2
	res, err := Run(scenario, 4, nil, p)
	if err != nil {
		t.Fatal(err)
	}
	if !equalFloat32(res.Data, scenarioShaved) || len(res.Flags) != 2 {
		t.Errorf("whole image: got %v with %d flags", res.Data, len(res.Flags))
	}

	p.RestoreFlags = true
	res, _ = Run(scenario, 4, nil, p)
	if res.Data[1] != 300 || res.Data[11] != 400 {
		t.Errorf("restore flags: got %v", res.Data)
	}

	// the cookie covers the whole 4x4 image, so nothing is lost
	p.RestoreFlags = false
	entries := []catalog.Entry{{X: 1, Y: 0, A: 1, B: 0.5}}
	for _, mode := range []Mode{CookieCut, Masking} {
		p.Mode = mode
		res, err = Run(scenario, 4, entries, p)
		if err != nil {
			t.Fatal(err)
		}
		if !equalFloat32(res.Data, scenario) {
			t.Errorf("%v: got %v, want original", mode, res.Data)
		}
	}

	p.Bits = 7
	if res, err := Run(scenario, 4, nil, p); !errors.Is(err, ErrInvalidParameter) || res != nil {
		t.Errorf("bits 7: got %v, %v", res, err)
	}
	p.Bits = 2
	if _, err := Run(scenario, 3, nil, p); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("bad width: got %v", err)
	}
	p.Tiers.SmallHalfWidth = 0
	if _, err := Run(scenario, 4, entries, p); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("bad tiers: got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{WholeImage, CookieCut, Masking} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("%v: got %v, %v", m, got, err)
		}
	}
	if _, err := ParseMode("hcomp"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("got %v, want ErrInvalidParameter", err)
	}

	var p Params
	if err := json.Unmarshal([]byte(`{"mode":"cc","bits":3}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Mode != CookieCut || p.Bits != 3 {
		t.Errorf("got %+v", p)
	}
}
