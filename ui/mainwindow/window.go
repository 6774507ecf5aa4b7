// Package mainwindow provides the main application window.
package mainwindow

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"dicom-viewer/internal/app"
	"dicom-viewer/internal/dicomfile"
	"dicom-viewer/internal/version"
	"dicom-viewer/internal/viewport"
	"dicom-viewer/ui/prefs"
	"dicom-viewer/ui/viewer"
)

const (
	prefKeyLastDir    = "lastDirectory"
	prefKeyLastSeries = "lastSeries"
	prefKeyRows       = "layoutRows"
	prefKeyCols       = "layoutCols"
)

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app   fyne.App
	state *app.State
	orch  *viewport.Orchestrator
	prefs *prefs.Prefs

	viewer    *viewer.Widget
	thumbs    *viewer.Strip
	statusBar *widget.Label
	toolLabel *widget.Label
}

// New creates a new main window.
func New(fyneApp fyne.App, state *app.State, orch *viewport.Orchestrator, view *viewer.Widget, thumbs *viewer.Strip, p *prefs.Prefs) *MainWindow {
	win := fyneApp.NewWindow("DICOM Viewer")

	mw := &MainWindow{
		Window: win,
		app:    fyneApp,
		state:  state,
		orch:   orch,
		prefs:  p,
		viewer: view,
		thumbs: thumbs,
	}

	mw.restoreLayout()
	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()
	mw.setupKeys()

	return mw
}

// restoreLayout reapplies the viewport grid saved by the previous run.
// Missing or unusable preferences keep the configured layout.
func (mw *MainWindow) restoreLayout() {
	rows := mw.prefs.IntWithFallback(prefKeyRows, 0)
	cols := mw.prefs.IntWithFallback(prefKeyCols, 0)
	if rows <= 0 || cols <= 0 {
		return
	}
	if err := mw.orch.SetLayout(rows, cols); err != nil {
		log.Printf("mainwindow: restoring %dx%d layout: %v", rows, cols, err)
	}
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	mw.statusBar = widget.NewLabel("Ready")
	mw.toolLabel = widget.NewLabel("Tool: window/level")

	mw.viewer.OnChanged = mw.updateStatusFromSession
	mw.thumbs.OnSelect = func(index int) {
		mw.orch.NavigateTo(index)
		mw.viewer.Refresh()
		mw.updateStatusFromSession()
	}

	toolbar := mw.createToolbar()

	// Viewer area with toolbar on top and thumbnails below
	viewerArea := container.NewBorder(
		toolbar,   // top
		mw.thumbs, // bottom
		nil,       // left
		nil,       // right
		mw.viewer, // center
	)

	// Main container with status bar at bottom
	content := container.NewBorder(
		nil, // top
		container.NewPadded(container.NewHBox(mw.toolLabel, mw.statusBar)), // bottom
		nil,        // left
		nil,        // right
		viewerArea, // center
	)

	mw.SetContent(content)
	mw.Resize(fyne.NewSize(1024, 800))
}

// createToolbar creates the toolbar with zoom controls.
func (mw *MainWindow) createToolbar() fyne.CanvasObject {
	zoomOutBtn := widget.NewButton("-", func() {
		mw.onZoomOut()
	})
	zoomInBtn := widget.NewButton("+", func() {
		mw.onZoomIn()
	})
	fitBtn := widget.NewButton("Fit", func() {
		mw.onFit()
	})
	actualBtn := widget.NewButton("1:1", func() {
		mw.onActualSize()
	})
	prevBtn := widget.NewButton("<", func() {
		mw.orch.Previous()
		mw.refreshView()
	})
	nextBtn := widget.NewButton(">", func() {
		mw.orch.Next()
		mw.refreshView()
	})

	return container.NewHBox(
		widget.NewLabel("Zoom:"),
		zoomOutBtn,
		zoomInBtn,
		fitBtn,
		actualBtn,
		widget.NewSeparator(),
		prevBtn,
		nextBtn,
	)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	// File menu
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Series Folder...", mw.onOpenSeries),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() { mw.app.Quit() }),
	)

	// View menu
	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.onZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.onZoomOut),
		fyne.NewMenuItem("Fit to Viewport", mw.onFit),
		fyne.NewMenuItem("Actual Size", mw.onActualSize),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Invert", mw.onInvert),
		fyne.NewMenuItem("Flip Horizontal", mw.onFlip),
	)

	// Layout menu
	layoutMenu := fyne.NewMenu("Layout",
		fyne.NewMenuItem("1 x 1", func() { mw.onSetLayout(1, 1) }),
		fyne.NewMenuItem("1 x 2", func() { mw.onSetLayout(1, 2) }),
		fyne.NewMenuItem("2 x 2", func() { mw.onSetLayout(2, 2) }),
	)

	// Tools menu
	toolsMenu := fyne.NewMenu("Tools",
		fyne.NewMenuItem("Window/Level", func() { mw.onSelectTool(viewport.ToolWindowLevel) }),
		fyne.NewMenuItem("Zoom", func() { mw.onSelectTool(viewport.ToolZoom) }),
		fyne.NewMenuItem("Pan", func() { mw.onSelectTool(viewport.ToolPan) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Rectangle", func() { mw.onSelectTool(viewport.ToolRectangle) }),
		fyne.NewMenuItem("Ellipse", func() { mw.onSelectTool(viewport.ToolEllipse) }),
		fyne.NewMenuItem("Length", func() { mw.onSelectTool(viewport.ToolLength) }),
		fyne.NewMenuItem("Angle", func() { mw.onSelectTool(viewport.ToolAngle) }),
		fyne.NewMenuItem("Arrow", func() { mw.onSelectTool(viewport.ToolArrow) }),
		fyne.NewMenuItem("Freehand", func() { mw.onSelectTool(viewport.ToolFreehand) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Clear Annotations", mw.onClearAnnotations),
	)

	// Help menu
	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mainMenu := fyne.NewMainMenu(fileMenu, viewMenu, layoutMenu, toolsMenu, helpMenu)
	mw.SetMainMenu(mainMenu)
}

// setupEventHandlers registers for application events.
func (mw *MainWindow) setupEventHandlers() {
	mw.state.On(app.EventSeriesOpened, func(data interface{}) {
		if key, ok := data.(string); ok {
			mw.SetTitle("DICOM Viewer - " + filepath.Base(key))
			mw.updateStatus("Loading series: " + key)
		}
	})

	mw.state.On(app.EventLoadProgress, func(data interface{}) {
		if pct, ok := data.(int); ok && pct < 100 {
			mw.updateStatus(fmt.Sprintf("Loading... %d%%", pct))
		}
	})

	mw.state.On(app.EventLoadComplete, func(data interface{}) {
		mw.refreshView()
	})

	mw.state.On(app.EventToolChanged, func(data interface{}) {
		if name, ok := data.(string); ok {
			mw.toolLabel.SetText("Tool: " + name)
		}
	})

	mw.state.On(app.EventSessionError, func(data interface{}) {
		if err, ok := data.(error); ok {
			dialog.ShowConfirm("Rendering Session Lost",
				"The rendering session could not be created:\n"+err.Error()+"\n\nRetry?",
				func(retry bool) {
					if retry {
						if err := mw.orch.Retry(); err != nil {
							mw.state.Emit(app.EventSessionError, err)
							return
						}
						mw.refreshView()
					}
				}, mw.Window)
		}
	})
}

// setupKeys binds stack navigation to the arrow keys.
func (mw *MainWindow) setupKeys() {
	mw.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeyUp, fyne.KeyLeft:
			mw.orch.Previous()
			mw.refreshView()
		case fyne.KeyDown, fyne.KeyRight:
			mw.orch.Next()
			mw.refreshView()
		}
	})
}

// RestoreLastSeries reopens the series used in the previous run.
func (mw *MainWindow) RestoreLastSeries() {
	dir := mw.prefs.String(prefKeyLastSeries)
	if dir == "" {
		return
	}
	mw.openSeries(dir)
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

// updateStatusFromSession rebuilds the status line from the live
// session: position, zoom, annotation count.
func (mw *MainWindow) updateStatusFromSession() {
	count := mw.orch.ImageCount()
	if count == 0 {
		mw.updateStatus("No viewable images")
		return
	}

	text := fmt.Sprintf("Image %d/%d", mw.orch.CurrentIndex()+1, count)
	if vp := mw.orch.ActiveViewport(); vp != nil {
		text += fmt.Sprintf(" | Zoom %d%%", vp.ZoomPercent())
	}
	if n := mw.orch.AnnotationCount(); n > 0 {
		text += fmt.Sprintf(" | %d annotations", n)
	}
	if err := mw.orch.LastError(); err != nil {
		text += " | " + err.Error()
	}
	mw.updateStatus(text)
}

// refreshView redraws the viewer and status after a model change.
func (mw *MainWindow) refreshView() {
	mw.viewer.Refresh()
	mw.updateStatusFromSession()
}

// getLastDir returns the last used directory as a ListableURI, or nil.
func (mw *MainWindow) getLastDir() fyne.ListableURI {
	path := mw.prefs.String(prefKeyLastDir)
	if path == "" {
		return nil
	}
	uri := storage.NewFileURI(path)
	listable, err := storage.ListerForURI(uri)
	if err != nil {
		return nil
	}
	return listable
}

// Menu action handlers

func (mw *MainWindow) onOpenSeries() {
	fd := dialog.NewFolderOpen(func(list fyne.ListableURI, err error) {
		if err != nil || list == nil {
			return
		}
		dir := list.Path()
		mw.prefs.SetString(prefKeyLastDir, filepath.Dir(dir))
		mw.prefs.SetString(prefKeyLastSeries, dir)
		if err := mw.prefs.Save(); err != nil {
			log.Printf("mainwindow: saving preferences: %v", err)
		}
		mw.openSeries(dir)
	}, mw.Window)
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

// openSeries lists a folder and loads it as one series. The bulk load
// runs off the event thread; progress flows through the app state.
func (mw *MainWindow) openSeries(dir string) {
	refs, err := dicomfile.DirectoryRefs(dir)
	if err != nil {
		dialog.ShowError(err, mw.Window)
		return
	}
	if len(refs) == 0 {
		mw.updateStatus("No DICOM files in " + dir)
		return
	}

	mw.state.SetSeries(dir, dir, refs)
	mw.thumbs.SetSeries(context.Background(), refs)

	go func() {
		err := mw.orch.LoadSeries(context.Background(), dir, refs, func(pct int) {
			mw.state.SetProgress(pct)
		})
		if err != nil {
			log.Printf("mainwindow: loading %s: %v", dir, err)
			mw.state.Emit(app.EventSessionError, err)
		}
	}()
}

func (mw *MainWindow) onZoomIn() {
	mw.adjustZoom(1.25)
}

func (mw *MainWindow) onZoomOut() {
	mw.adjustZoom(0.8)
}

func (mw *MainWindow) adjustZoom(factor float64) {
	vp := mw.orch.ActiveViewport()
	if vp == nil {
		return
	}
	vp.AdjustZoom(factor)
	mw.renderAndRefresh()
}

func (mw *MainWindow) onFit() {
	vp := mw.orch.ActiveViewport()
	if vp == nil {
		return
	}
	st := vp.State()
	st.ZoomScale = 0
	st.PanX, st.PanY = 0, 0
	vp.ApplyState(st)
	mw.renderAndRefresh()
}

func (mw *MainWindow) onActualSize() {
	vp := mw.orch.ActiveViewport()
	if vp == nil {
		return
	}
	st := vp.State()
	st.ZoomScale = 1
	vp.ApplyState(st)
	mw.renderAndRefresh()
}

func (mw *MainWindow) onInvert() {
	mw.orch.ToggleInvert()
	mw.refreshView()
}

func (mw *MainWindow) onFlip() {
	mw.orch.ToggleFlip()
	mw.refreshView()
}

func (mw *MainWindow) onSetLayout(rows, cols int) {
	mw.prefs.SetInt(prefKeyRows, rows)
	mw.prefs.SetInt(prefKeyCols, cols)
	if err := mw.prefs.Save(); err != nil {
		log.Printf("mainwindow: saving preferences: %v", err)
	}
	if err := mw.orch.SetLayout(rows, cols); err != nil {
		mw.state.Emit(app.EventSessionError, err)
		return
	}
	mw.state.Emit(app.EventLayoutChanged, [2]int{rows, cols})
	mw.refreshView()
}

func (mw *MainWindow) onSelectTool(name string) {
	mw.orch.SetActiveTool(name)
	mw.state.Emit(app.EventToolChanged, name)
}

func (mw *MainWindow) onClearAnnotations() {
	mw.orch.ClearAnnotations()
	mw.refreshView()
}

func (mw *MainWindow) renderAndRefresh() {
	if sess := mw.orch.Session(); sess != nil {
		sess.Engine().RenderAll()
	}
	mw.refreshView()
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About DICOM Viewer",
		fmt.Sprintf("DICOM Viewer v%s\n\n"+
			"A lightweight radiology image viewer.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.Version, version.BuildTime, version.GitCommit),
		mw.Window)
}
