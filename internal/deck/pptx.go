package deck

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DeckMeta is written into the package core properties.
type DeckMeta struct {
	Title   string
	Author  string
	Created time.Time
}

type zipPart struct {
	name string
	data []byte
}

type mediaFile struct {
	name string
	ext  string
	data []byte
}

// Writer accumulates slides and serializes them as a .pptx package.
type Writer struct {
	meta    DeckMeta
	palette Palette
	slides  []SlideLayout
	media   []mediaFile
	byPath  map[string]int
}

func NewWriter(meta DeckMeta, palette Palette) *Writer {
	if meta.Title == "" {
		meta.Title = "Generated Presentation"
	}
	if meta.Author == "" {
		meta.Author = "PPTX Generator"
	}
	if meta.Created.IsZero() {
		meta.Created = time.Now().UTC()
	}
	return &Writer{
		meta:    meta,
		palette: palette,
		byPath:  make(map[string]int),
	}
}

// AddImage registers image bytes for a source path so ImageBlocks that
// reference the path can be embedded. format is "png", "jpeg" or "gif".
func (w *Writer) AddImage(sourcePath, format string, data []byte) {
	if _, ok := w.byPath[sourcePath]; ok {
		return
	}
	ext := format
	if ext == "jpeg" {
		ext = "jpg"
	}
	w.byPath[sourcePath] = len(w.media)
	w.media = append(w.media, mediaFile{
		name: fmt.Sprintf("image%d.%s", len(w.media)+1, ext),
		ext:  ext,
		data: data,
	})
}

func (w *Writer) AddSlide(layout SlideLayout) {
	w.slides = append(w.slides, layout)
}

func (w *Writer) SlideCount() int {
	return len(w.slides)
}

// WriteFile writes the package to path through a temp file and rename.
func (w *Writer) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.pptx")
	if err != nil {
		return fmt.Errorf("create temp deck: %w", err)
	}
	tmpName := tmp.Name()
	if err := w.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp deck: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename deck: %w", err)
	}
	return nil
}

// WriteTo serializes the package into out.
func (w *Writer) WriteTo(out io.Writer) error {
	zw := zip.NewWriter(out)
	parts := []zipPart{
		{"[Content_Types].xml", []byte(w.contentTypes())},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"docProps/core.xml", []byte(w.coreProps())},
		{"docProps/app.xml", []byte(fmt.Sprintf(appXML, len(w.slides)))},
		{"ppt/presentation.xml", []byte(w.presentation())},
		{"ppt/_rels/presentation.xml.rels", []byte(w.presentationRels())},
		{"ppt/presProps.xml", []byte(presPropsXML)},
		{"ppt/viewProps.xml", []byte(viewPropsXML)},
		{"ppt/tableStyles.xml", []byte(tableStylesXML)},
		{"ppt/slideMasters/slideMaster1.xml", []byte(fmt.Sprintf(slideMasterXML, w.palette.Background))},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", []byte(slideMasterRelsXML)},
		{"ppt/slideLayouts/slideLayout1.xml", []byte(slideLayoutXML)},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", []byte(slideLayoutRelsXML)},
		{"ppt/theme/theme1.xml", []byte(w.theme())},
	}
	for i, slide := range w.slides {
		body, rels := w.slideParts(slide)
		parts = append(parts,
			zipPart{fmt.Sprintf("ppt/slides/slide%d.xml", i+1), body},
			zipPart{fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1), rels},
		)
	}
	for _, m := range w.media {
		parts = append(parts, zipPart{"ppt/media/" + m.name, m.data})
	}

	for _, part := range parts {
		header := &zip.FileHeader{
			Name:     part.name,
			Method:   zip.Deflate,
			Modified: w.meta.Created,
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create part %s: %w", part.name, err)
		}
		if _, err := fw.Write(part.data); err != nil {
			return fmt.Errorf("write part %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize deck: %w", err)
	}
	return nil
}

func (w *Writer) contentTypes() string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	seen := map[string]bool{}
	for _, m := range w.media {
		if seen[m.ext] {
			continue
		}
		seen[m.ext] = true
		mime := "image/" + m.ext
		if m.ext == "jpg" {
			mime = "image/jpeg"
		}
		fmt.Fprintf(&b, `<Default Extension="%s" ContentType="%s"/>`, m.ext, mime)
	}
	override := func(part, contentType string) {
		fmt.Fprintf(&b, `<Override PartName="%s" ContentType="%s"/>`, part, contentType)
	}
	override("/ppt/presentation.xml", ctPresentation)
	override("/ppt/slideMasters/slideMaster1.xml", ctSlideMaster)
	override("/ppt/slideLayouts/slideLayout1.xml", ctSlideLayout)
	override("/ppt/theme/theme1.xml", ctTheme)
	override("/ppt/presProps.xml", ctPresProps)
	override("/ppt/viewProps.xml", ctViewProps)
	override("/ppt/tableStyles.xml", ctTableStyles)
	override("/docProps/core.xml", ctCore)
	override("/docProps/app.xml", ctExtended)
	for i := range w.slides {
		override(fmt.Sprintf("/ppt/slides/slide%d.xml", i+1), ctSlide)
	}
	b.WriteString(`</Types>`)
	return b.String()
}

func (w *Writer) coreProps() string {
	stamp := w.meta.Created.UTC().Format(time.RFC3339)
	author := escapeXML(w.meta.Author)
	return fmt.Sprintf(coreXML, escapeXML(w.meta.Title), author, author, stamp, stamp)
}

func (w *Writer) theme() string {
	p := w.palette
	return fmt.Sprintf(themeXML,
		p.Background, p.TextSecondary,
		p.AccentPurple, p.AccentYellow, p.AccentLime, p.AccentOrange, p.Card, p.TextMuted,
	)
}

// Relationship ids in presentation.xml.rels: rId1 master, rId2..rId(n+1)
// slides, then theme and the property parts.
func (w *Writer) presentation() string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<p:presentation xmlns:a="%s" xmlns:r="%s" xmlns:p="%s" saveSubsetFonts="1">`, nsA, nsR, nsP)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	if len(w.slides) > 0 {
		b.WriteString(`<p:sldIdLst>`)
		for i := range w.slides {
			fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+2)
		}
		b.WriteString(`</p:sldIdLst>`)
	}
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/>`, toEMU(CanvasWidth), toEMU(CanvasHeight))
	b.WriteString(`<p:notesSz cx="6858000" cy="9144000"/>`)
	b.WriteString(`<p:defaultTextStyle><a:lvl1pPr><a:defRPr sz="1800"/></a:lvl1pPr></p:defaultTextStyle>`)
	b.WriteString(`</p:presentation>`)
	return b.String()
}

func (w *Writer) presentationRels() string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	rel := func(id int, relType, target string) {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="%s" Target="%s"/>`, id, relType, target)
	}
	rel(1, relSlideMaster, "slideMasters/slideMaster1.xml")
	for i := range w.slides {
		rel(i+2, relSlide, fmt.Sprintf("slides/slide%d.xml", i+1))
	}
	next := len(w.slides) + 2
	rel(next, relTheme, "theme/theme1.xml")
	rel(next+1, relPresProps, "presProps.xml")
	rel(next+2, relViewProps, "viewProps.xml")
	rel(next+3, relTableStyles, "tableStyles.xml")
	b.WriteString(`</Relationships>`)
	return b.String()
}

// slideParts renders one slide and its relationship part. rId1 is the
// layout; embedded images follow.
func (w *Writer) slideParts(layout SlideLayout) ([]byte, []byte) {
	var (
		body bytes.Buffer
		rels bytes.Buffer
	)
	rels.WriteString(xmlHeader)
	rels.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	fmt.Fprintf(&rels, `<Relationship Id="rId1" Type="%s" Target="../slideLayouts/slideLayout1.xml"/>`, relSlideLayout)

	body.WriteString(xmlHeader)
	fmt.Fprintf(&body, `<p:sld xmlns:a="%s" xmlns:r="%s" xmlns:p="%s">`, nsA, nsR, nsP)
	body.WriteString(`<p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>`)
	body.WriteString(`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`)

	shapeID := 2
	nextRel := 2
	for _, primitive := range layout.Primitives {
		switch p := primitive.(type) {
		case ImageBlock:
			index, ok := w.byPath[p.SourcePath]
			if !ok {
				continue
			}
			relID := fmt.Sprintf("rId%d", nextRel)
			nextRel++
			fmt.Fprintf(&rels, `<Relationship Id="%s" Type="%s" Target="../media/%s"/>`, relID, relImage, w.media[index].name)
			writePicture(&body, shapeID, relID, p)
		case ShapeBlock:
			writeShape(&body, shapeID, p)
		case TextBlock:
			writeText(&body, shapeID, p)
		default:
			continue
		}
		shapeID++
	}

	body.WriteString(`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`)
	rels.WriteString(`</Relationships>`)
	return body.Bytes(), rels.Bytes()
}

func writeXfrm(b *bytes.Buffer, x, y, w, h float64) {
	fmt.Fprintf(b, `<a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`,
		toEMU(x), toEMU(y), toEMU(w), toEMU(h))
}

func writePicture(b *bytes.Buffer, id int, relID string, p ImageBlock) {
	fmt.Fprintf(b, `<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Image %d"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`, id, id)
	fmt.Fprintf(b, `<p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill><p:spPr>`, relID)
	writeXfrm(b, p.X, p.Y, p.W, p.H)
	b.WriteString(`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`)
}

func writeShape(b *bytes.Buffer, id int, s ShapeBlock) {
	fmt.Fprintf(b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Shape %d"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr><p:spPr>`, id, id)
	writeXfrm(b, s.X, s.Y, s.W, s.H)
	b.WriteString(`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom>`)
	fmt.Fprintf(b, `<a:solidFill><a:srgbClr val="%s"/></a:solidFill>`, s.Fill)
	fmt.Fprintf(b, `<a:ln w="12700"><a:solidFill><a:srgbClr val="%s"/></a:solidFill><a:prstDash val="solid"/></a:ln>`, s.StrokeColor)
	b.WriteString(`</p:spPr></p:sp>`)
}

func writeText(b *bytes.Buffer, id int, t TextBlock) {
	fmt.Fprintf(b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Text %d"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr><p:spPr>`, id, id)
	writeXfrm(b, t.X, t.Y, t.W, t.H)
	b.WriteString(`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`)
	anchor := "ctr"
	if t.AnchorTop {
		anchor = "t"
	}
	fmt.Fprintf(b, `<p:txBody><a:bodyPr wrap="square" lIns="91440" tIns="45720" rIns="91440" bIns="45720" rtlCol="0" anchor="%s"><a:normAutofit/></a:bodyPr><a:lstStyle/>`, anchor)
	bold := ""
	if t.Bold {
		bold = ` b="1"`
	}
	for _, line := range strings.Split(t.Text, "\n") {
		fmt.Fprintf(b, `<a:p><a:r><a:rPr lang="en-US" sz="%d"%s dirty="0"><a:solidFill><a:srgbClr val="%s"/></a:solidFill><a:latin typeface="Arial"/></a:rPr><a:t>%s</a:t></a:r></a:p>`,
			int(t.FontSize*100), bold, t.Color, escapeXML(line))
	}
	b.WriteString(`</p:txBody></p:sp>`)
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
