//go:build darwin && cgo

package capture

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework AppKit

#include <CoreGraphics/CoreGraphics.h>
#include <AppKit/AppKit.h>
#include <stdlib.h>

typedef struct {
    void* data;
    int width;
    int height;
    int bytesPerRow;
    int error;
} CaptureResult;

// captureDisplay grabs the given display with CGDisplayCreateImage and
// copies it into a malloc'd RGBA buffer.
CaptureResult captureDisplay(int displayIndex) {
    CaptureResult result = {0};

    CGDirectDisplayID displays[16];
    uint32_t count = 0;
    if (CGGetActiveDisplayList(16, displays, &count) != kCGErrorSuccess || count == 0) {
        result.error = 1;
        return result;
    }
    uint32_t idx = (uint32_t)displayIndex;
    if (idx >= count) {
        idx = 0;
    }

    CGImageRef image = CGDisplayCreateImage(displays[idx]);
    if (image == NULL) {
        result.error = 2; // likely missing screen-recording permission
        return result;
    }

    size_t width = CGImageGetWidth(image);
    size_t height = CGImageGetHeight(image);
    size_t bytesPerRow = width * 4;

    void* buf = malloc(bytesPerRow * height);
    if (buf == NULL) {
        CGImageRelease(image);
        result.error = 3;
        return result;
    }

    CGColorSpaceRef colorSpace = CGColorSpaceCreateDeviceRGB();
    CGContextRef ctx = CGBitmapContextCreate(buf, width, height, 8, bytesPerRow, colorSpace,
        kCGImageAlphaPremultipliedLast | kCGBitmapByteOrder32Big);
    CGColorSpaceRelease(colorSpace);

    if (ctx == NULL) {
        free(buf);
        CGImageRelease(image);
        result.error = 4;
        return result;
    }

    CGContextDrawImage(ctx, CGRectMake(0, 0, width, height), image);
    CGContextRelease(ctx);
    CGImageRelease(image);

    result.data = buf;
    result.width = (int)width;
    result.height = (int)height;
    result.bytesPerRow = (int)bytesPerRow;
    return result;
}

void freeCaptureBuf(void* data) {
    if (data != NULL) {
        free(data);
    }
}

void getDisplayBounds(int displayIndex, int* width, int* height, double* scale, int* error) {
    *error = 0;
    NSArray<NSScreen *>* screens = [NSScreen screens];
    if (screens.count == 0) {
        *error = 1;
        return;
    }
    NSUInteger idx = (NSUInteger)displayIndex;
    if (idx >= screens.count) {
        idx = 0;
    }
    NSScreen* screen = screens[idx];
    NSRect frame = [screen frame];
    *scale = [screen backingScaleFactor];
    *width = (int)frame.size.width;
    *height = (int)frame.size.height;
}
*/
import "C"

import (
	"fmt"
	"image"
	"sync"
)

// coreGraphicsCapturer implements ScreenCapturer for macOS via CGDisplayCreateImage.
type coreGraphicsCapturer struct {
	cfg Config
	mu  sync.Mutex
}

func newPlatformCapturer(cfg Config) (ScreenCapturer, error) {
	return &coreGraphicsCapturer{cfg: cfg}, nil
}

func (c *coreGraphicsCapturer) Capture() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := C.captureDisplay(C.int(c.cfg.DisplayIndex))
	if result.error != 0 {
		return nil, c.translateError(int(result.error))
	}
	defer C.freeCaptureBuf(result.data)

	width := int(result.width)
	height := int(result.height)
	bytesPerRow := int(result.bytesPerRow)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	raw := C.GoBytes(result.data, C.int(bytesPerRow*height))
	for y := 0; y < height; y++ {
		srcStart := y * bytesPerRow
		dstStart := y * img.Stride
		copy(img.Pix[dstStart:dstStart+width*4], raw[srcStart:srcStart+width*4])
	}
	return img, nil
}

func (c *coreGraphicsCapturer) Bounds() (width, height int, scaleFactor float64, err error) {
	var cWidth, cHeight, cError C.int
	var cScale C.double

	C.getDisplayBounds(C.int(c.cfg.DisplayIndex), &cWidth, &cHeight, &cScale, &cError)
	if cError != 0 {
		return 0, 0, 0, fmt.Errorf("capture: failed to read display bounds")
	}
	return int(cWidth), int(cHeight), float64(cScale), nil
}

func (c *coreGraphicsCapturer) Close() error {
	return nil
}

func (c *coreGraphicsCapturer) translateError(code int) error {
	switch code {
	case 1:
		return fmt.Errorf("capture: CGGetActiveDisplayList failed")
	case 2:
		return ErrPermissionDenied
	case 3, 4:
		return fmt.Errorf("capture: failed to allocate capture buffer")
	default:
		return fmt.Errorf("capture: unknown error %d", code)
	}
}

var _ ScreenCapturer = (*coreGraphicsCapturer)(nil)
