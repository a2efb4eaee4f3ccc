//go:build windows

package capture

import (
	"fmt"
	"image"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	gdi32  = windows.NewLazySystemDLL("gdi32.dll")

	procGetDC              = user32.NewProc("GetDC")
	procReleaseDC           = user32.NewProc("ReleaseDC")
	procGetSystemMetrics    = user32.NewProc("GetSystemMetrics")
	procGetDeviceCaps       = gdi32.NewProc("GetDeviceCaps")
	procSetProcessDPIAware  = user32.NewProc("SetProcessDPIAware")

	procCreateCompatibleDC     = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32.NewProc("SelectObject")
	procBitBlt                 = gdi32.NewProc("BitBlt")
	procDeleteDC               = gdi32.NewProc("DeleteDC")
	procDeleteObject           = gdi32.NewProc("DeleteObject")
	procGetDIBits              = gdi32.NewProc("GetDIBits")
)

const (
	smCxScreen = 0
	smCyScreen = 1
	logPixelsX = 88
	srcCopy    = 0x00CC0020
	captureBlt = 0x40000000
	biRGB      = 0
	dibRGBColors = 0
)

type bitmapInfoHeader struct {
	biSize          uint32
	biWidth         int32
	biHeight        int32
	biPlanes        uint16
	biBitCount      uint16
	biCompression   uint32
	biSizeImage     uint32
	biXPelsPerMeter int32
	biYPelsPerMeter int32
	biClrUsed       uint32
	biClrImportant  uint32
}

type bitmapInfo struct {
	header    bitmapInfoHeader
	bmiColors [1]uint32
}

func init() {
	if procSetProcessDPIAware.Find() == nil {
		procSetProcessDPIAware.Call()
	}
}

// gdiCapturer implements ScreenCapturer using Windows GDI BitBlt. No CGo
// needed: the DLL calls go through golang.org/x/sys/windows.
type gdiCapturer struct {
	cfg Config
	mu  sync.Mutex

	screenDC  uintptr
	memDC     uintptr
	hBitmap   uintptr
	oldBitmap uintptr
	bi        bitmapInfo
	width     int
	height    int
	inited    bool
	pixBuf    []byte
}

func newPlatformCapturer(cfg Config) (ScreenCapturer, error) {
	return &gdiCapturer{cfg: cfg}, nil
}

func (c *gdiCapturer) ensureHandlesLocked() error {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	if w == 0 || h == 0 {
		return fmt.Errorf("capture: GetSystemMetrics returned zero dimensions")
	}
	width, height := int(w), int(h)

	if c.inited && c.width == width && c.height == height {
		return nil
	}
	c.releaseHandlesLocked()

	hdc, _, _ := procGetDC.Call(0)
	if hdc == 0 {
		return fmt.Errorf("capture: GetDC failed")
	}
	memDC, _, _ := procCreateCompatibleDC.Call(hdc)
	if memDC == 0 {
		procReleaseDC.Call(0, hdc)
		return fmt.Errorf("capture: CreateCompatibleDC failed")
	}
	hBitmap, _, _ := procCreateCompatibleBitmap.Call(hdc, uintptr(width), uintptr(height))
	if hBitmap == 0 {
		procDeleteDC.Call(memDC)
		procReleaseDC.Call(0, hdc)
		return fmt.Errorf("capture: CreateCompatibleBitmap failed")
	}
	oldBitmap, _, _ := procSelectObject.Call(memDC, hBitmap)
	if oldBitmap == 0 {
		procDeleteObject.Call(hBitmap)
		procDeleteDC.Call(memDC)
		procReleaseDC.Call(0, hdc)
		return fmt.Errorf("capture: SelectObject failed")
	}

	c.screenDC, c.memDC, c.hBitmap, c.oldBitmap = hdc, memDC, hBitmap, oldBitmap
	c.width, c.height = width, height
	c.inited = true
	c.pixBuf = make([]byte, width*height*4)
	c.bi = bitmapInfo{
		header: bitmapInfoHeader{
			biSize:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
			biWidth:       int32(width),
			biHeight:      -int32(height), // negative = top-down
			biPlanes:      1,
			biBitCount:    32,
			biCompression: biRGB,
		},
	}
	return nil
}

func (c *gdiCapturer) releaseHandlesLocked() {
	if !c.inited {
		return
	}
	if c.oldBitmap != 0 && c.memDC != 0 {
		procSelectObject.Call(c.memDC, c.oldBitmap)
	}
	if c.hBitmap != 0 {
		procDeleteObject.Call(c.hBitmap)
	}
	if c.memDC != 0 {
		procDeleteDC.Call(c.memDC)
	}
	if c.screenDC != 0 {
		procReleaseDC.Call(0, c.screenDC)
	}
	c.inited = false
	c.screenDC, c.memDC, c.hBitmap, c.oldBitmap = 0, 0, 0, 0
}

func (c *gdiCapturer) Capture() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt == 1 {
			c.releaseHandlesLocked()
		}
		if err := c.ensureHandlesLocked(); err != nil {
			lastErr = err
			continue
		}
		img, err := c.captureOnceLocked()
		if err == nil {
			return img, nil
		}
		lastErr = err
	}
	// A transient BitBlt/DIBits failure (e.g. secure-desktop transition) is
	// treated as "no frame yet" rather than fatal.
	_ = lastErr
	return nil, nil
}

func (c *gdiCapturer) captureOnceLocked() (*image.RGBA, error) {
	ret, _, _ := procBitBlt.Call(c.memDC, 0, 0, uintptr(c.width), uintptr(c.height),
		c.screenDC, 0, 0, srcCopy|captureBlt)
	if ret == 0 {
		ret, _, _ = procBitBlt.Call(c.memDC, 0, 0, uintptr(c.width), uintptr(c.height),
			c.screenDC, 0, 0, srcCopy)
		if ret == 0 {
			return nil, fmt.Errorf("capture: BitBlt failed")
		}
	}

	ret, _, _ = procGetDIBits.Call(
		c.memDC, c.hBitmap, 0, uintptr(c.height),
		uintptr(unsafe.Pointer(&c.pixBuf[0])),
		uintptr(unsafe.Pointer(&c.bi)),
		dibRGBColors,
	)
	if ret == 0 {
		return nil, fmt.Errorf("capture: GetDIBits failed")
	}

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	bgraToRGBA(c.pixBuf, img.Pix, c.width*c.height)
	return img, nil
}

func bgraToRGBA(src, dst []byte, pixelCount int) {
	n := pixelCount * 4
	for i := 0; i < n; i += 4 {
		dst[i+0] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i+0]
		dst[i+3] = 255
	}
}

func (c *gdiCapturer) Bounds() (width, height int, scaleFactor float64, err error) {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	if w == 0 || h == 0 {
		return 0, 0, 0, fmt.Errorf("capture: GetSystemMetrics returned zero dimensions")
	}

	hdc, _, _ := procGetDC.Call(0)
	scale := 1.0
	if hdc != 0 {
		dpi, _, _ := procGetDeviceCaps.Call(hdc, logPixelsX)
		procReleaseDC.Call(0, hdc)
		if dpi > 0 {
			scale = float64(dpi) / 96.0
		}
	}

	return int(w), int(h), scale, nil
}

func (c *gdiCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseHandlesLocked()
	return nil
}

var _ ScreenCapturer = (*gdiCapturer)(nil)
