// Decode of an in-memory GeoTIFF byte blob into per-band pixel arrays.
//
// Adapted from the teacher's internal/geo/geotiff.go, which parsed a
// single-band float32 GeoTIFF for LiDAR CHM display. That use (map
// rendering) is out of scope here, but the decoder itself is exactly what
// C7's multi-band soil layer needs: ST_AsGDALRaster(ST_Clip(rast, poly),
// 'GTiff') returns the clipped raster as GeoTIFF bytes, and this package
// decodes it band-by-band so ClassifyTexture can work on real per-band
// pixel means rather than a DB-side approximation. Generalised from the
// teacher's float32-only, single-band reader to cover the sample formats
// and band counts the soil product and the other 15 raster layers use
// (uint8 class rasters, int16 elevation/temperature, float32 continuous
// multi-band).
package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// DecodedRaster holds one or more bands of pixel values extracted from a
// GeoTIFF, plus its declared nodata value.
type DecodedRaster struct {
	Width, Height int
	BandCount     int
	// Bands[b][y*Width+x] is the pixel value of band b at (x,y).
	Bands     [][]float64
	NoData    float64
	HasNoData bool
}

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagSampleFormat    = 339
	tagGDALNoData      = 42113
)

const (
	tiffShort = 3
	tiffLong  = 4
)

// DecodeGeoTIFF parses a strip-organized, uncompressed-or-DEFLATE GeoTIFF
// with 1 or more bands of 8/16/32-bit samples (unsigned int or IEEE
// float). Tiled TIFFs are not supported — ST_AsGDALRaster output for the
// clipped polygon extents this core deals with is always strip-organized
// at the sizes involved, so tiling support from the teacher's original
// decoder was dropped.
func DecodeGeoTIFF(data []byte) (*DecodedRaster, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("raster: geotiff data too short")
	}
	var bo binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("raster: invalid byte order marker")
	}
	if bo.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("raster: not a TIFF file")
	}
	return parseIFD(data, bo, bo.Uint32(data[4:8]))
}

type ifdEntry struct {
	tag, dtype uint16
	count      uint32
	valOff     uint32
}

func typeSize(dtype uint16) int {
	switch dtype {
	case 1, 2:
		return 1
	case tiffShort:
		return 2
	case tiffLong:
		return 4
	case 11:
		return 4
	case 12:
		return 8
	default:
		return 1
	}
}

func parseIFD(data []byte, bo binary.ByteOrder, offset uint32) (*DecodedRaster, error) {
	if int(offset)+2 > len(data) {
		return nil, fmt.Errorf("raster: IFD offset out of range")
	}
	n := int(bo.Uint16(data[offset:]))
	entries := make([]ifdEntry, n)
	pos := int(offset) + 2
	for i := 0; i < n; i++ {
		if pos+12 > len(data) {
			return nil, fmt.Errorf("raster: truncated IFD entry")
		}
		entries[i] = ifdEntry{
			tag:    bo.Uint16(data[pos:]),
			dtype:  bo.Uint16(data[pos+2:]),
			count:  bo.Uint32(data[pos+4:]),
			valOff: bo.Uint32(data[pos+8:]),
		}
		pos += 12
	}

	get := func(tag uint16) *ifdEntry {
		for i := range entries {
			if entries[i].tag == tag {
				return &entries[i]
			}
		}
		return nil
	}
	value := func(tag uint16) uint32 {
		e := get(tag)
		if e == nil {
			return 0
		}
		if e.dtype == tiffShort && e.count == 1 {
			buf := make([]byte, 4)
			bo.PutUint32(buf, e.valOff)
			return uint32(bo.Uint16(buf))
		}
		return e.valOff
	}
	array := func(tag uint16) []uint32 {
		e := get(tag)
		if e == nil {
			return nil
		}
		cnt := int(e.count)
		sz := typeSize(e.dtype) * cnt
		var src []byte
		if sz <= 4 {
			buf := make([]byte, 4)
			bo.PutUint32(buf, e.valOff)
			src = buf
		} else {
			off := int(e.valOff)
			if off+sz > len(data) {
				return nil
			}
			src = data[off:]
		}
		out := make([]uint32, cnt)
		for i := 0; i < cnt; i++ {
			if e.dtype == tiffShort {
				out[i] = uint32(bo.Uint16(src[i*2:]))
			} else {
				out[i] = bo.Uint32(src[i*4:])
			}
		}
		return out
	}

	width := int(value(tagImageWidth))
	height := int(value(tagImageLength))
	compression := value(tagCompression)
	bits := value(tagBitsPerSample)
	sampleFormat := value(tagSampleFormat)
	if sampleFormat == 0 {
		sampleFormat = 1
	}
	samplesPerPixel := int(value(tagSamplesPerPixel))
	if samplesPerPixel == 0 {
		samplesPerPixel = 1
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("raster: zero image dimensions")
	}

	var noData float64
	var hasNoData bool
	if e := get(tagGDALNoData); e != nil {
		off := int(e.valOff)
		end := off
		for end < len(data) && data[end] != 0 {
			end++
		}
		if end > off {
			if _, err := fmt.Sscanf(string(data[off:end]), "%f", &noData); err == nil {
				hasNoData = true
			}
		}
	}

	bands := make([][]float64, samplesPerPixel)
	for b := range bands {
		bands[b] = make([]float64, width*height)
	}

	rowsPerStrip := int(value(tagRowsPerStrip))
	if rowsPerStrip == 0 {
		rowsPerStrip = height
	}
	offsets := array(tagStripOffsets)
	byteCounts := array(tagStripByteCounts)
	if len(offsets) == 0 {
		return nil, fmt.Errorf("raster: no strip offsets")
	}

	bytesPerSample := bits / 8
	if bytesPerSample == 0 {
		bytesPerSample = 1
	}

	y := 0
	for i, off := range offsets {
		bc := uint32(0)
		if i < len(byteCounts) {
			bc = byteCounts[i]
		}
		raw, err := decompressChunk(data, off, bc, compression)
		if err != nil {
			return nil, fmt.Errorf("raster: strip %d: %w", i, err)
		}
		rows := rowsPerStrip
		if y+rows > height {
			rows = height - y
		}
		samplesInStrip := rows * width * samplesPerPixel
		pos := 0
		for r := 0; r < rows; r++ {
			for x := 0; x < width; x++ {
				for b := 0; b < samplesPerPixel; b++ {
					if pos >= samplesInStrip || (pos+1)*int(bytesPerSample) > len(raw) {
						continue
					}
					v := readSample(raw, pos, int(bytesPerSample), sampleFormat, bo)
					bands[b][(y+r)*width+x] = v
					pos++
				}
			}
		}
		y += rows
	}

	return &DecodedRaster{
		Width: width, Height: height, BandCount: samplesPerPixel,
		Bands: bands, NoData: noData, HasNoData: hasNoData,
	}, nil
}

func readSample(raw []byte, sampleIdx, byteWidth int, sampleFormat uint32, bo binary.ByteOrder) float64 {
	off := sampleIdx * byteWidth
	switch byteWidth {
	case 1:
		return float64(raw[off])
	case 2:
		u := bo.Uint16(raw[off:])
		if sampleFormat == 2 { // signed int
			return float64(int16(u))
		}
		return float64(u)
	case 4:
		if sampleFormat == 3 { // IEEE float
			return float64(math.Float32frombits(bo.Uint32(raw[off:])))
		}
		if sampleFormat == 2 {
			return float64(int32(bo.Uint32(raw[off:])))
		}
		return float64(bo.Uint32(raw[off:]))
	default:
		return 0
	}
}

func decompressChunk(data []byte, offset, byteCount, compression uint32) ([]byte, error) {
	off, bc := int(offset), int(byteCount)
	if off+bc > len(data) || off < 0 || bc < 0 {
		return nil, fmt.Errorf("chunk out of bounds")
	}
	chunk := data[off : off+bc]
	switch compression {
	case 1:
		return chunk, nil
	case 8, 32946:
		r, err := zlib.NewReader(bytes.NewReader(chunk))
		if err != nil {
			return nil, fmt.Errorf("zlib init: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported compression type %d", compression)
	}
}

// BandMean returns the mean of a band's pixel values, excluding the
// raster's declared nodata value.
func BandMean(r *DecodedRaster, band int) float64 {
	if band >= len(r.Bands) {
		return 0
	}
	var sum float64
	var n int
	for _, v := range r.Bands[band] {
		if r.HasNoData && v == r.NoData {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
