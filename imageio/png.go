package imageio

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/Remi-Gau/NiMARE/volume"
)

// WriteStack renders a statistic map as one grayscale PNG per axial slice,
// named {prefix}.z{depth}.png under dir. Each slice is window-scaled to its
// own maximum absolute value so structure stays visible in weak slices.
func WriteStack(vol *volume.Volume, dir, prefix string) error {
	if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
		// path is a directory already
	} else if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	xm, ym, zm := vol.Grid.Dims[0], vol.Grid.Dims[1], vol.Grid.Dims[2]

	rect := image.Rect(0, 0, xm, ym)
	colImg := image.NewRGBA(rect)
	var grayCol color.Color
	var col color.Color

	for z := 0; z < zm; z++ {
		maxIntensity := 0.0
		for i := 0; i < 2; i++ {
			for x := 0; x < xm; x++ {
				for y := 0; y < ym; y++ {
					intensity := math.Abs(vol.At(x, y, z))
					if i == 0 {
						if intensity > maxIntensity {
							maxIntensity = intensity
						}

						continue
					}

					grayCol = color.Gray16{Y: applyWindowScaling(intensity, maxIntensity)}
					col = color.RGBA64Model.Convert(grayCol)
					colImg.Set(x, y, col)
				}
			}
		}

		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%s.z%06d.png", prefix, z)))
		if err != nil {
			return err
		}
		fw := bufio.NewWriter(f)

		if err := png.Encode(fw, colImg); err != nil {
			f.Close()
			return err
		}

		fw.Flush()
		f.Close()
	}

	return nil
}

func applyWindowScaling(intensity, maxIntensity float64) uint16 {
	if intensity <= 0 || maxIntensity <= 0 {
		return 0
	}

	return uint16(float64(math.MaxUint16) * intensity / maxIntensity)
}
